package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sells-group/pricing-cli/internal/jobs"
	"github.com/sells-group/pricing-cli/internal/store"
)

// NewMCPServer creates an MCP server exposing the pricing tools: queue a
// competitor scrape, read a product's latest pricing, apply a price and
// inspect queue health.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"pricing-cli",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("pricing-cli: competitor-driven price recommendations for catalog products."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("enqueue_scrape",
			mcp.WithDescription("Queue a competitor price scrape for a product. Invalid and duplicate URLs are dropped."),
			mcp.WithString("product_id", mcp.Description("Product identifier"), mcp.Required()),
			mcp.WithArray("urls", mcp.Description("Competitor product page URLs"), mcp.Required(), mcp.WithStringItems()),
			mcp.WithNumber("priority", mcp.Description("Job priority (default 0)")),
		),
		mcpEnqueueScrape(deps),
	)

	s.AddTool(
		mcp.NewTool("get_pricing_status",
			mcp.WithDescription("Return the latest competitor snapshot and pricing insight for a product."),
			mcp.WithString("product_id", mcp.Description("Product identifier"), mcp.Required()),
		),
		mcpPricingStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("apply_price",
			mcp.WithDescription("Set a product's selling price, usually to an insight's recommended price."),
			mcp.WithString("product_id", mcp.Description("Product identifier"), mcp.Required()),
			mcp.WithNumber("price", mcp.Description("New selling price in USD"), mcp.Required(), mcp.Min(0)),
		),
		mcpApplyPrice(deps),
	)

	s.AddTool(
		mcp.NewTool("queue_stats",
			mcp.WithDescription("Summarize snapshot queue depth, failure rate and fallback rate."),
		),
		mcpQueueStats(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"pricing://stats",
			"Pricing Queue Health",
			mcp.WithResourceDescription("Current pricing pipeline health as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpEnqueueScrape(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		productID, err := req.RequireString("product_id")
		if err != nil {
			return mcpError("product_id is required"), nil
		}
		urls := req.GetStringSlice("urls", nil)
		if len(urls) == 0 {
			return mcpError("urls must contain at least one URL"), nil
		}

		product, err := deps.Store.GetProduct(ctx, productID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load product: %v", err)), nil
		}
		if product == nil {
			return mcpError(fmt.Sprintf("product %s not found", productID)), nil
		}

		res, err := deps.Jobs.Enqueue(ctx, jobs.EnqueueRequest{
			ProductID: productID,
			URLs:      urls,
			Priority:  req.GetInt("priority", 0),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to enqueue: %v", err)), nil
		}
		return mcpJSON(res)
	}
}

func mcpPricingStatus(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		productID, err := req.RequireString("product_id")
		if err != nil {
			return mcpError("product_id is required"), nil
		}

		snap, err := deps.Store.GetLatestSnapshot(ctx, productID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load snapshot: %v", err)), nil
		}
		if snap == nil {
			return mcpError(fmt.Sprintf("no competitor snapshot found for %s", productID)), nil
		}
		insight, err := deps.Store.GetLatestInsight(ctx, productID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load insight: %v", err)), nil
		}
		return mcpJSON(StatusResponse{Snapshot: snap, Insight: insight})
	}
}

func mcpApplyPrice(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		productID, err := req.RequireString("product_id")
		if err != nil {
			return mcpError("product_id is required"), nil
		}
		price, err := req.RequireFloat("price")
		if err != nil || price < 0 {
			return mcpError("price must be a number >= 0"), nil
		}

		err = deps.Store.UpdateProductPrice(ctx, productID, price)
		if errors.Is(err, store.ErrNotFound) {
			return mcpError(fmt.Sprintf("product %s not found", productID)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to apply price: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Applied price %.2f to %s", price, productID)), nil
	}
}

func mcpQueueStats(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		h, err := deps.Collector.Collect(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to collect stats: %v", err)), nil
		}
		return mcpJSON(h)
	}
}

func mcpResourceStats(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		h, err := deps.Collector.Collect(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to collect stats: %w", err)
		}
		b, err := json.Marshal(h)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
