package bedrock

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBedrockClient implements bedrockRuntimeClient for testing
type mockBedrockClient struct {
	response *bedrockruntime.ConverseOutput
	err      error
	input    *bedrockruntime.ConverseInput
}

func (m *mockBedrockClient) Converse(ctx context.Context, input *bedrockruntime.ConverseInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.input = input
	return m.response, m.err
}

func textOutput(stop types.StopReason, texts ...string) *bedrockruntime.ConverseOutput {
	content := make([]types.ContentBlock, 0, len(texts))
	for _, t := range texts {
		content = append(content, &types.ContentBlockMemberText{Value: t})
	}
	return &bedrockruntime.ConverseOutput{
		StopReason: stop,
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{Role: types.ConversationRoleAssistant, Content: content},
		},
		Usage: &types.TokenUsage{
			InputTokens:  aws.Int32(10),
			OutputTokens: aws.Int32(20),
		},
		Metrics: &types.ConverseMetrics{LatencyMs: aws.Int64(100)},
	}
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name     string
		input    Options
		expected Options
	}{
		{
			name:  "empty options uses defaults",
			input: Options{},
			expected: Options{
				ModelID:     defaultModelID,
				MaxTokens:   defaultMaxTokens,
				Temperature: aws.Float32(defaultTemperature),
				TopP:        aws.Float32(defaultTopP),
			},
		},
		{
			name:     "custom options preserved",
			input:    Options{ModelID: "custom-model", MaxTokens: 2048, Temperature: aws.Float32(0.5), TopP: aws.Float32(0.8)},
			expected: Options{ModelID: "custom-model", MaxTokens: 2048, Temperature: aws.Float32(0.5), TopP: aws.Float32(0.8)},
		},
		{
			name:  "explicit zero temperature is kept",
			input: Options{Temperature: aws.Float32(0), TopP: aws.Float32(0)},
			expected: Options{
				ModelID:     defaultModelID,
				MaxTokens:   defaultMaxTokens,
				Temperature: aws.Float32(0),
				TopP:        aws.Float32(0),
			},
		},
		{
			name:  "partial options with defaults",
			input: Options{ModelID: "custom-model"},
			expected: Options{
				ModelID:     "custom-model",
				MaxTokens:   defaultMaxTokens,
				Temperature: aws.Float32(defaultTemperature),
				TopP:        aws.Float32(defaultTopP),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockClient := &mockBedrockClient{}
			client, err := NewClient(mockClient, tt.input)
			require.NoError(t, err)

			assert.Equal(t, tt.expected, client.opts)
			assert.Equal(t, mockClient, client.brc)
		})
	}
}

func TestClient_Submit(t *testing.T) {
	tests := []struct {
		name        string
		response    *bedrockruntime.ConverseOutput
		err         error
		expected    string
		expectedErr error
	}{
		{
			name:     "end turn returns text",
			response: textOutput(types.StopReasonEndTurn, `{"recipient_id": "r1"}`),
			expected: `{"recipient_id": "r1"}`,
		},
		{
			name:     "multiple text blocks are joined",
			response: textOutput(types.StopReasonEndTurn, "Here you go:", "```json\n{}\n```"),
			expected: "Here you go:\n```json\n{}\n```",
		},
		{
			name:     "stop sequence returns text",
			response: textOutput(types.StopReasonStopSequence, "done"),
			expected: "done",
		},
		{
			name:        "max tokens is an error",
			response:    textOutput(types.StopReasonMaxTokens, "{\"days\": {"),
			expectedErr: ErrMaxTokens,
		},
		{
			name:        "content filtered is an error",
			response:    textOutput(types.StopReasonContentFiltered),
			expectedErr: ErrFiltered,
		},
		{
			name:        "transport error is wrapped",
			err:         errors.New("throttled"),
			expectedErr: errors.New("throttled"),
		},
		{
			name:     "empty output returns empty text",
			response: &bedrockruntime.ConverseOutput{StopReason: types.StopReasonEndTurn},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := &mockBedrockClient{response: tt.response, err: tt.err}
			client, err := NewClient(mc, Options{})
			require.NoError(t, err)

			got, err := client.Submit(context.Background(), "You are a matcher.", "Pick one.")
			if tt.expectedErr != nil {
				require.Error(t, err)
				if tt.err != nil {
					assert.ErrorIs(t, err, tt.err)
				} else {
					assert.ErrorIs(t, err, tt.expectedErr)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestClient_SubmitBuildsConversation(t *testing.T) {
	mc := &mockBedrockClient{response: textOutput(types.StopReasonEndTurn, "ok")}
	client, err := NewClient(mc, Options{ModelID: "m", MaxTokens: 100, Temperature: aws.Float32(0)})
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), "system text", "user text")
	require.NoError(t, err)
	require.NotNil(t, mc.input)

	assert.Equal(t, "m", aws.ToString(mc.input.ModelId))
	require.Len(t, mc.input.System, 1)
	assert.Equal(t, "system text", mc.input.System[0].(*types.SystemContentBlockMemberText).Value)

	require.Len(t, mc.input.Messages, 1)
	assert.Equal(t, types.ConversationRoleUser, mc.input.Messages[0].Role)
	assert.Equal(t, "user text", mc.input.Messages[0].Content[0].(*types.ContentBlockMemberText).Value)
	assert.Equal(t, int32(100), aws.ToInt32(mc.input.InferenceConfig.MaxTokens))
	require.NotNil(t, mc.input.InferenceConfig.Temperature)
	assert.Equal(t, float32(0), *mc.input.InferenceConfig.Temperature)
	assert.Equal(t, float32(defaultTopP), aws.ToFloat32(mc.input.InferenceConfig.TopP))
	assert.Nil(t, mc.input.ToolConfig)
}

func TestClient_SubmitOmitsEmptySystemPrompt(t *testing.T) {
	mc := &mockBedrockClient{response: textOutput(types.StopReasonEndTurn, "ok")}
	client, err := NewClient(mc, Options{})
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), "  ", "hi")
	require.NoError(t, err)
	assert.Empty(t, mc.input.System)
}
