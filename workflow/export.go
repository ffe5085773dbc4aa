package workflow

import (
	"bytes"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Spec is a static description of a defined workflow.
type Spec struct {
	Name   string     `json:"name" yaml:"name"`
	Entry  string     `json:"entry" yaml:"entry"`
	Finish string     `json:"finish" yaml:"finish"`
	Nodes  []string   `json:"nodes" yaml:"nodes"`
	Edges  []EdgeSpec `json:"edges" yaml:"edges"`
	Order  []string   `json:"order" yaml:"order"`
}

type EdgeSpec struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Describe returns the spec of the named workflow.
func (o *Orchestrator) Describe(name string) (Spec, error) {
	c, err := o.lookup(name)
	if err != nil {
		return Spec{}, err
	}

	g := c.graph
	spec := Spec{
		Name:   g.Name,
		Entry:  g.Entry,
		Finish: g.Finish,
		Nodes:  make([]string, 0, len(g.Nodes)),
		Edges:  make([]EdgeSpec, 0, len(g.Edges)),
		Order:  make([]string, 0, len(c.order)),
	}
	for _, n := range g.Nodes {
		spec.Nodes = append(spec.Nodes, n.Name)
	}
	for _, e := range g.Edges {
		spec.Edges = append(spec.Edges, EdgeSpec{From: e.From, To: e.To})
	}
	for _, i := range c.order {
		spec.Order = append(spec.Order, g.Nodes[i].Name)
	}
	return spec, nil
}

// Mermaid renders the spec as a flowchart.
func (s Spec) Mermaid() string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	for _, n := range s.Nodes {
		shape := "[%s]"
		switch n {
		case s.Entry:
			shape = "([%s])"
		case s.Finish:
			shape = "[[%s]]"
		}
		fmt.Fprintf(&b, "    %s"+shape+"\n", n, n)
	}
	for _, e := range s.Edges {
		fmt.Fprintf(&b, "    %s --> %s\n", e.From, e.To)
	}
	return b.String()
}

func (s Spec) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func (s Spec) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Render formats the spec as "mermaid", "json" or "yaml".
func (s Spec) Render(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "mermaid":
		return []byte(s.Mermaid()), nil
	case "json":
		return s.JSON()
	case "yaml", "yml":
		return s.YAML()
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}
