package anthropic

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MessageResponse), args.Error(1)
}

func TestCreateMessage_MockClient(t *testing.T) {
	m := &MockClient{}
	req := MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 2048,
		System:    "You are a pricing analyst.",
		Messages:  []Message{{Role: "user", Content: "{}"}},
	}
	m.On("CreateMessage", mock.Anything, req).Return(&MessageResponse{
		ID:      "msg_1",
		Content: []ContentBlock{{Type: "text", Text: `{"recommendedPrice": 10}`}},
		Usage:   TokenUsage{InputTokens: 12, OutputTokens: 7},
	}, nil)

	var c Client = m
	resp, err := c.CreateMessage(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "msg_1", resp.ID)
	assert.Equal(t, `{"recommendedPrice": 10}`, resp.Text())
	m.AssertExpectations(t)
}

func TestMessageResponse_Text(t *testing.T) {
	tests := []struct {
		name string
		resp *MessageResponse
		want string
	}{
		{name: "nil", resp: nil, want: ""},
		{name: "empty", resp: &MessageResponse{}, want: ""},
		{
			name: "joins text blocks",
			resp: &MessageResponse{Content: []ContentBlock{
				{Type: "text", Text: "{\"a\":"},
				{Type: "text", Text: "1}"},
			}},
			want: "{\"a\":1}",
		},
		{
			name: "skips non-text blocks",
			resp: &MessageResponse{Content: []ContentBlock{
				{Type: "thinking", Text: "hmm"},
				{Type: "text", Text: "ok"},
			}},
			want: "ok",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.resp.Text())
		})
	}
}

func TestToSDKMessages_Roles(t *testing.T) {
	out := toSDKMessages([]Message{
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "a"},
		{Role: "other", Content: "x"},
	})
	require.Len(t, out, 3)
	assert.Equal(t, "user", string(out[0].Role))
	assert.Equal(t, "assistant", string(out[1].Role))
	assert.Equal(t, "user", string(out[2].Role))
}

func TestEstimateCost_Haiku(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.InDelta(t, 4.80, u.EstimateCost("claude-haiku-4-5-20251001"), 1e-9)
}

func TestEstimateCost_Sonnet(t *testing.T) {
	u := TokenUsage{InputTokens: 500_000, OutputTokens: 100_000}
	assert.InDelta(t, 1.5+1.5, u.EstimateCost("claude-sonnet-4-5-20250929"), 1e-9)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	u := TokenUsage{InputTokens: 1000, OutputTokens: 1000}
	assert.Zero(t, u.EstimateCost("gpt-4o"))
}

func TestEstimateCost_ZeroTokens(t *testing.T) {
	assert.Zero(t, TokenUsage{}.EstimateCost("claude-haiku-4-5-20251001"))
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		TokenUsage{InputTokens: 10, OutputTokens: 5}.LogCost("claude-haiku-4-5-20251001", "pricing")
	})
}

func TestStatusCode_NonAPIError(t *testing.T) {
	assert.Zero(t, StatusCode(nil))
	assert.Zero(t, StatusCode(eris.New("boom")))
}
