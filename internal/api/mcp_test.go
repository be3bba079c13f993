package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricing-cli/internal/model"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestNewMCPServer(t *testing.T) {
	assert.NotNil(t, NewMCPServer(newTestDeps(t), "test"))
}

func TestMCPTool_EnqueueScrape(t *testing.T) {
	deps := newTestDeps(t)
	seedProduct(t, deps.Store, "p1")
	handler := mcpEnqueueScrape(deps)

	result, err := handler(context.Background(), callTool("enqueue_scrape", map[string]any{
		"product_id": "p1",
		"urls":       []any{"https://a.com/x", "bogus", "https://a.com/x"},
		"priority":   2,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	var res struct {
		JobID  string `json:"jobId"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &res))
	assert.Equal(t, "queued", res.Status)

	job, err := deps.Store.GetScrapeJob(context.Background(), res.JobID)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.com/x"}, job.URLs)
	assert.Equal(t, 2, job.Priority)
}

func TestMCPTool_EnqueueScrape_Errors(t *testing.T) {
	deps := newTestDeps(t)
	seedProduct(t, deps.Store, "p1")
	handler := mcpEnqueueScrape(deps)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing product id", map[string]any{"urls": []any{"https://a.com"}}, "product_id is required"},
		{"missing urls", map[string]any{"product_id": "p1"}, "urls must contain"},
		{"unknown product", map[string]any{"product_id": "ghost", "urls": []any{"https://a.com"}}, "not found"},
		{"no valid urls", map[string]any{"product_id": "p1", "urls": []any{"nope"}}, "at least one valid URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := handler(context.Background(), callTool("enqueue_scrape", tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, toolText(t, result), tt.want)
		})
	}
}

func TestMCPTool_PricingStatus(t *testing.T) {
	deps := newTestDeps(t)
	handler := mcpPricingStatus(deps)

	result, err := handler(context.Background(), callTool("get_pricing_status", map[string]any{"product_id": "p1"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	snap := &model.CompetitorSnapshot{ProductID: "p1", JobID: uuid.NewString(), ScrapedAt: time.Now().UTC()}
	require.NoError(t, deps.Store.CreateSnapshot(context.Background(), snap))

	result, err = handler(context.Background(), callTool("get_pricing_status", map[string]any{"product_id": "p1"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, toolText(t, result), snap.ID)
}

func TestMCPTool_ApplyPrice(t *testing.T) {
	deps := newTestDeps(t)
	seedProduct(t, deps.Store, "p1")
	handler := mcpApplyPrice(deps)

	result, err := handler(context.Background(), callTool("apply_price", map[string]any{"product_id": "p1", "price": 21.5}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "Applied price 21.50 to p1", toolText(t, result))

	result, err = handler(context.Background(), callTool("apply_price", map[string]any{"product_id": "p1", "price": -3.0}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = handler(context.Background(), callTool("apply_price", map[string]any{"product_id": "ghost", "price": 3.0}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(t, result), "not found")
}

func TestMCPTool_QueueStats(t *testing.T) {
	deps := newTestDeps(t)
	result, err := mcpQueueStats(deps)(context.Background(), callTool("queue_stats", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var h map[string]any
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &h))
	assert.Contains(t, h, "fallback_rate")
}

func TestMCPResource_Stats(t *testing.T) {
	deps := newTestDeps(t)
	contents, err := mcpResourceStats(deps)(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "pricing://stats"},
	})
	require.NoError(t, err)
	require.Len(t, contents, 1)

	tc, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "application/json", tc.MIMEType)
	assert.Contains(t, tc.Text, "snapshots_pending")
}
