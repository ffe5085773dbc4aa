package agents

import (
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

func donationMatchSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"recipient_id":  {Type: "string", Description: "_id of the chosen recipient, empty when none fits"},
			"justification": {Type: "string"},
		},
		Required: []string{"recipient_id", "justification"},
	}
}

func wasteMatchSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"user_id":       {Type: "string", Description: "user_id of the chosen business, empty when none fits"},
			"justification": {Type: "string"},
			"repurposing":   {Type: "string", Description: "how the receiver can transform and use the material"},
		},
		Required: []string{"user_id", "justification"},
	}
}

func mealSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"name":        {Type: "string"},
			"description": {Type: "string"},
			"ingredients": {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			"nutrition": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"calories": {Type: "number"},
					"protein":  {Type: "number"},
					"carbs":    {Type: "number"},
					"fat":      {Type: "number"},
				},
			},
		},
		Required: []string{"name", "ingredients"},
	}
}

func mealPlanSchema() *jsonschema.Schema {
	day := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"breakfast": mealSchema(),
			"lunch":     mealSchema(),
			"dinner":    mealSchema(),
		},
	}
	days := make(map[string]*jsonschema.Schema, 7)
	for _, d := range weekdays() {
		days[d] = day
	}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"days":          {Type: "object", Properties: days},
			"shopping_list": {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			"nutritional_summary": {
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"weekly_calories": {Type: "number"},
					"weekly_protein":  {Type: "number"},
				},
			},
		},
		Required: []string{"days", "shopping_list", "nutritional_summary"},
	}
}

func nutritionSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"calories":  {Type: "number"},
			"protein_g": {Type: "number"},
			"carbs_g":   {Type: "number"},
			"fat_g":     {Type: "number"},
			"fiber_g":   {Type: "number"},
			"notes":     {Type: "string"},
		},
		Required: []string{"calories", "protein_g", "carbs_g", "fat_g"},
	}
}

func hotspotSchema() *jsonschema.Schema {
	area := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"location":  {Type: "string", Description: "address or area name as it appears in the data"},
			"latitude":  {Type: "number"},
			"longitude": {Type: "number"},
			"severity":  {Type: "number", Description: "risk of food insecurity from 0 (none) to 1 (critical)"},
			"factors":   {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		},
		Required: []string{"location", "severity"},
	}
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"hotspots": {Type: "array", Items: area},
			"summary":  {Type: "string"},
		},
		Required: []string{"hotspots"},
	}
}

// schemaText renders s for inclusion in a prompt.
func schemaText(s *jsonschema.Schema) string {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
