package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mbocsi/tradedash/api"
	"github.com/mbocsi/tradedash/client"
)

func (s *Server) registerStreamTools() {
	statusTool := mcp.NewTool("stream_status",
		mcp.WithDescription("Connection state of the live streams"),
		mcp.WithString("stream",
			mcp.Description("Stream name; all streams when omitted"),
		),
	)
	s.Server.AddTool(statusTool, s.handleStreamStatus)

	lastTool := mcp.NewTool("last_message",
		mcp.WithDescription("Most recent message received on a stream"),
		mcp.WithString("stream",
			mcp.Required(),
			mcp.Description("Stream name, e.g. market-data"),
		),
	)
	s.Server.AddTool(lastTool, s.handleLastMessage)

	sendTool := mcp.NewTool("send_message",
		mcp.WithDescription("Send a raw text frame upstream on an open stream"),
		mcp.WithString("stream",
			mcp.Required(),
			mcp.Description("Stream name"),
		),
		mcp.WithString("payload",
			mcp.Required(),
			mcp.Description("Frame to send, usually a JSON object"),
		),
	)
	s.Server.AddTool(sendTool, s.handleSendMessage)
}

func (s *Server) registerTradingTools() {
	portfolioTool := mcp.NewTool("get_portfolio",
		mcp.WithDescription("Current portfolio value and asset allocation"),
		mcp.WithBoolean("include_metrics",
			mcp.Description("Include trading performance metrics"),
		),
	)
	s.Server.AddTool(portfolioTool, s.handleGetPortfolio)

	tradesTool := mcp.NewTool("list_scheduled_trades",
		mcp.WithDescription("Scheduled trades of the logged-in user"),
		mcp.WithString("status",
			mcp.Description("Only trades with this status"),
			mcp.Enum(api.StatusPending, api.StatusExecuted, api.StatusFailed, api.StatusCancelled),
		),
	)
	s.Server.AddTool(tradesTool, s.handleListScheduledTrades)

	summaryTool := mcp.NewTool("market_summary",
		mcp.WithDescription("24h market summary for a trading pair"),
		mcp.WithString("symbol",
			mcp.Required(),
			mcp.Description("Trading pair, e.g. BTC/USDT"),
		),
	)
	s.Server.AddTool(summaryTool, s.handleMarketSummary)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) handleStreamStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if name := request.GetString("stream", ""); name != "" {
		st, ok := s.stream(name)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("Unknown stream %q, have: %s", name, strings.Join(s.streamNames(), ", "))), nil
		}
		status := st.Status()
		status.Name = name
		return jsonResult(status)
	}

	statuses := []client.Status{}
	for _, name := range s.streamNames() {
		st, _ := s.stream(name)
		status := st.Status()
		status.Name = name
		statuses = append(statuses, status)
	}
	return jsonResult(map[string]any{
		"streams": statuses,
		"count":   len(statuses),
	})
}

func (s *Server) handleLastMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("stream")
	if err != nil {
		return mcp.NewToolResultError("stream is required and must be a string"), nil
	}
	st, ok := s.stream(name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Unknown stream %q", name)), nil
	}
	msg, ok := st.LastMessage()
	if !ok {
		return mcp.NewToolResultText(fmt.Sprintf("No message received on %s yet", name)), nil
	}
	raw, err := msg.MarshalJSON()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode message: %v", err)), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("stream")
	if err != nil {
		return mcp.NewToolResultError("stream is required and must be a string"), nil
	}
	payload, err := request.RequireString("payload")
	if err != nil {
		return mcp.NewToolResultError("payload is required and must be a string"), nil
	}
	st, ok := s.stream(name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Unknown stream %q", name)), nil
	}
	if !st.SendMessage(payload) {
		return mcp.NewToolResultError(fmt.Sprintf("Stream %s is not open, message dropped", name)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Sent %d bytes on %s", len(payload), name)), nil
}

func (s *Server) handleGetPortfolio(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	portfolio, err := s.api.Portfolio(ctx)
	if err != nil {
		return apiError("fetch portfolio", err), nil
	}
	result := map[string]any{"portfolio": portfolio}

	if request.GetBool("include_metrics", false) {
		metrics, err := s.api.Metrics(ctx)
		if err != nil {
			return apiError("fetch metrics", err), nil
		}
		result["metrics"] = metrics
	}
	return jsonResult(result)
}

func (s *Server) handleListScheduledTrades(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	trades, err := s.api.ScheduledTrades(ctx)
	if err != nil {
		return apiError("list scheduled trades", err), nil
	}
	if status := request.GetString("status", ""); status != "" {
		filtered := trades[:0:0]
		for _, t := range trades {
			if t.Status == status {
				filtered = append(filtered, t)
			}
		}
		trades = filtered
	}
	return jsonResult(map[string]any{
		"trades": trades,
		"count":  len(trades),
	})
}

func (s *Server) handleMarketSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	symbol, err := request.RequireString("symbol")
	if err != nil {
		return mcp.NewToolResultError("symbol is required and must be a string"), nil
	}
	summary, err := s.api.MarketSummary(ctx, symbol)
	if err != nil {
		return apiError("fetch market summary", err), nil
	}
	return jsonResult(summary)
}

func apiError(action string, err error) *mcp.CallToolResult {
	if api.IsUnauthorized(err) {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: not logged in or token expired (%v)", action, err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %v", action, err))
}
