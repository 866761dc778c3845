package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/codeme/heyme/internal/conversation"
	"github.com/codeme/heyme/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Answerer Answering
}

// NewMCPServer creates an MCP server exposing the knowledge base to agent
// clients: retrieval-augmented Q&A, conversation history, and share links.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"heyme",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("Hey Me — personal AI agent answering questions from the user's own documents."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_documents",
			mcp.WithDescription("Ask a question answered from the indexed documents using retrieval-augmented generation."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("group_id", mcp.Description("Optional document group to scope retrieval to")),
			mcp.WithNumber("top_k", mcp.Description("Number of context chunks to retrieve (default 5)")),
		),
		mcpAskDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("list_history",
			mcp.WithDescription("List recent question/answer pairs from the conversation history."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of pairs (default 10)")),
		),
		mcpListHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("create_share_link",
			mcp.WithDescription("Create a public share link scoped to a document group."),
			mcp.WithString("group_id", mcp.Description("Document group the link exposes"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Optional link title")),
		),
		mcpCreateShareLink(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"chat://logs",
			"Conversation History",
			mcp.WithResourceDescription("All stored question/answer pairs as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceLogs(deps),
	)

	return s
}

func mcpAskDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		groupID := req.GetString("group_id", "")
		topK := req.GetInt("top_k", conversation.DefaultTopK)
		if topK <= 0 {
			topK = conversation.DefaultTopK
		}
		if topK > 50 {
			topK = 50
		}

		resp, err := deps.Answerer.Answer(ctx, question, topK, groupID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to answer: %v", err)), nil
		}

		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal response: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}

		logs, err := deps.Store.ListQALogs()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list history: %v", err)), nil
		}

		// Newest pairs are the most useful to an agent.
		if len(logs) > limit {
			logs = logs[len(logs)-limit:]
		}

		type pairSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Question  string `json:"question"`
			Answer    string `json:"answer"`
		}

		summaries := make([]pairSummary, len(logs))
		for i, l := range logs {
			answer := l.Answer
			if utf8.RuneCountInString(answer) > 500 {
				runes := []rune(answer)
				answer = string(runes[:500]) + "..."
			}
			summaries[i] = pairSummary{
				ID:        l.ID,
				CreatedAt: l.CreatedAt.Format(time.RFC3339),
				Question:  l.Question,
				Answer:    answer,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal history: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCreateShareLink(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		groupID, err := req.RequireString("group_id")
		if err != nil {
			return mcpError("group_id is required"), nil
		}
		title := req.GetString("title", "")

		link := storage.ShareLink{
			ID:       uuid.New().String(),
			GroupID:  groupID,
			Title:    title,
			IsActive: true,
		}
		if err := deps.Store.SaveShareLink(link); err != nil {
			return mcpError(fmt.Sprintf("failed to save link: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Created share link %s", link.ID)), nil
	}
}

func mcpResourceLogs(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		logs, err := deps.Store.ListQALogs()
		if err != nil {
			return nil, fmt.Errorf("failed to list logs: %w", err)
		}

		b, err := json.Marshal(logs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal logs: %w", err)
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
