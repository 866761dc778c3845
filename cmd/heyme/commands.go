package main

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeme/heyme/internal/config"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question against your documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		groupID, _ := cmd.Flags().GetString("group")
		topK, _ := cmd.Flags().GetInt("top-k")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/v1/chat/rag", map[string]any{
			"question": question,
			"group_id": groupID,
			"top_k":    topK,
		})
		if err != nil {
			return err
		}

		var result struct {
			Answer  string `json:"answer"`
			Sources []struct {
				Title   string  `json:"title"`
				ChunkID int     `json:"chunk_id"`
				Score   float32 `json:"score"`
			} `json:"sources"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		if len(result.Sources) > 0 {
			fmt.Println()
			for _, s := range result.Sources {
				fmt.Printf("  %s (chunk %d, score %.3f)\n", colorize(colorCyan, s.Title), s.ChunkID, s.Score)
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("group", "", "document group to answer from")
	askCmd.Flags().Int("top-k", 0, "number of context chunks to retrieve")
}

// --- logs ---

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Manage conversation history",
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored question/answer pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/v1/chat/logs")
		if err != nil {
			return err
		}

		var logs []struct {
			ID        string    `json:"id"`
			Question  string    `json:"question"`
			Answer    string    `json:"answer"`
			CreatedAt time.Time `json:"created_at"`
		}
		if err := decodeJSON(resp, &logs); err != nil {
			return err
		}

		if len(logs) == 0 {
			fmt.Println("No conversation history.")
			return nil
		}

		for _, l := range logs {
			question := l.Question
			if len(question) > 80 {
				question = question[:80] + "..."
			}
			fmt.Printf("%s  %s  %s\n",
				colorize(colorCyan, l.ID[:8]),
				l.CreatedAt.Local().Format("2006-01-02 15:04"),
				question,
			)
		}
		return nil
	},
}

var logsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all conversation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL conversation history. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/v1/chat/logs")
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Conversation history cleared")
		return nil
	},
}

func init() {
	logsClearCmd.Flags().Bool("confirm", false, "confirm history deletion")
	logsCmd.AddCommand(logsListCmd)
	logsCmd.AddCommand(logsClearCmd)
}

// --- docs ---

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage documents in the knowledge base",
}

var docsAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Upload a document for indexing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		title, _ := cmd.Flags().GetString("title")
		groupID, _ := cmd.Flags().GetString("group")

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		fileName := filepath.Base(path)
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = "text/plain"
		}
		if title == "" {
			title = fileName
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/v1/documents", map[string]any{
			"title":     title,
			"file_name": fileName,
			"mime_type": mimeType,
			"group_id":  groupID,
			"content":   base64.StdEncoding.EncodeToString(data),
			"encoding":  "base64",
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued document %s for indexing", result["id"])
		return nil
	},
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/v1/documents?limit=%d", limit))
		if err != nil {
			return err
		}

		var docs []struct {
			ID         string `json:"id"`
			Title      string `json:"title"`
			Status     string `json:"status"`
			ChunkCount int    `json:"chunk_count"`
		}
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents uploaded.")
			return nil
		}

		for _, d := range docs {
			status := d.Status
			switch status {
			case "processed":
				status = colorize(colorGreen, fmt.Sprintf("%s (%d chunks)", status, d.ChunkCount))
			case "failed":
				status = colorize(colorRed, status)
			default:
				status = colorize(colorYellow, status)
			}
			fmt.Printf("%s  %-40s  %s\n", colorize(colorCyan, d.ID[:8]), d.Title, status)
		}
		return nil
	},
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document and its vectors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/v1/documents/"+args[0])
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted document %s", args[0])
		return nil
	},
}

var docsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Watch indexing progress until the queue drains",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		for {
			resp, err := client.get(cmd.Context(), "/api/v1/documents?limit=100")
			if err != nil {
				return err
			}

			var docs []struct {
				Status string `json:"status"`
			}
			if err := decodeJSON(resp, &docs); err != nil {
				return err
			}

			pending := 0
			for _, d := range docs {
				if d.Status == "uploaded" || d.Status == "processing" {
					pending++
				}
			}
			if pending == 0 {
				printSuccess("All documents indexed")
				return nil
			}

			printStep("%d document(s) still indexing...", pending)
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-time.After(2 * time.Second):
			}
		}
	},
}

func init() {
	docsAddCmd.Flags().String("title", "", "title for the document")
	docsAddCmd.Flags().String("group", "", "document group")
	docsListCmd.Flags().Int("limit", 20, "maximum number of documents to list")
	docsCmd.AddCommand(docsAddCmd)
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsDeleteCmd)
	docsCmd.AddCommand(docsStatusCmd)
}

// --- links ---

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Manage public share links",
}

var linksCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a public share link for a document group",
	RunE: func(cmd *cobra.Command, args []string) error {
		groupID, _ := cmd.Flags().GetString("group")
		title, _ := cmd.Flags().GetString("title")
		expiresIn, _ := cmd.Flags().GetString("expires-in")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"group_id": groupID, "title": title}
		if expiresIn != "" {
			body["expires_in"] = expiresIn
		}
		resp, err := client.post(cmd.Context(), "/api/v1/links", body)
		if err != nil {
			return err
		}

		var link struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &link); err != nil {
			return err
		}

		printSuccess("Created share link %s", link.ID)
		fmt.Printf("%s/api/v1/links/%s\n", client.baseURL, link.ID)
		return nil
	},
}

var linksShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a share link and its access stats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/v1/links/"+args[0])
		if err != nil {
			return err
		}

		var link struct {
			ID             string     `json:"id"`
			GroupID        string     `json:"group_id"`
			Title          string     `json:"title"`
			IsActive       bool       `json:"is_active"`
			AccessCount    int        `json:"access_count"`
			LastAccessedAt *time.Time `json:"last_accessed_at"`
			ExpiresAt      *time.Time `json:"expires_at"`
		}
		if err := decodeJSON(resp, &link); err != nil {
			return err
		}

		printStatus("Link", "%s", link.ID)
		printStatus("Group", "%s", link.GroupID)
		if link.Title != "" {
			printStatus("Title", "%s", link.Title)
		}
		printStatus("Active", "%t", link.IsActive)
		printStatus("Accesses", "%d", link.AccessCount)
		if link.LastAccessedAt != nil {
			printStatus("Last access", "%s", link.LastAccessedAt.Local().Format(time.RFC822))
		}
		if link.ExpiresAt != nil {
			printStatus("Expires", "%s", link.ExpiresAt.Local().Format(time.RFC822))
		}
		return nil
	},
}

func init() {
	linksCreateCmd.Flags().String("group", "", "document group the link exposes")
	linksCreateCmd.Flags().String("title", "", "title for the link")
	linksCreateCmd.Flags().String("expires-in", "", "expiry as a Go duration, e.g. 72h")
	linksCmd.AddCommand(linksCreateCmd)
	linksCmd.AddCommand(linksShowCmd)
}

// --- dashboard ---

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show usage overview",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/v1/dashboard/overview")
		if err != nil {
			return err
		}

		var overview struct {
			Keywords []struct {
				Keyword string `json:"keyword"`
				Count   int    `json:"count"`
			} `json:"keywords"`
			RecentQuestions []struct {
				Question string `json:"question"`
			} `json:"recent_questions"`
			FailedQuestions []struct {
				SampleQuestion string `json:"sample_question"`
				FailCount      int    `json:"fail_count"`
			} `json:"failed_questions"`
			DailyCounts []struct {
				Date  string `json:"date"`
				Count int    `json:"count"`
			} `json:"daily_counts"`
			TotalQuestions int `json:"total_questions"`
		}
		if err := decodeJSON(resp, &overview); err != nil {
			return err
		}

		printStatus("Total questions", "%d", overview.TotalQuestions)

		if len(overview.Keywords) > 0 {
			fmt.Println(colorize(colorBold, "\nTop keywords"))
			for _, k := range overview.Keywords {
				fmt.Printf("  %-20s %d\n", k.Keyword, k.Count)
			}
		}

		if len(overview.DailyCounts) > 0 {
			fmt.Println(colorize(colorBold, "\nQuestions per day (last 30 days)"))
			for _, d := range overview.DailyCounts {
				fmt.Printf("  %s  %s\n", d.Date, strings.Repeat("█", d.Count))
			}
		}

		if len(overview.RecentQuestions) > 0 {
			fmt.Println(colorize(colorBold, "\nRecent questions"))
			for _, q := range overview.RecentQuestions {
				question := q.Question
				if len(question) > 80 {
					question = question[:80] + "..."
				}
				fmt.Printf("  %s\n", question)
			}
		}

		if len(overview.FailedQuestions) > 0 {
			fmt.Println(colorize(colorBold, "\nUnanswered questions"))
			for _, q := range overview.FailedQuestions {
				fmt.Printf("  %s (%d times)\n", q.SampleQuestion, q.FailCount)
			}
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
