package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/codeme/heyme/internal/conversation"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat against your documents",
	Long: `Interactive chat against your documents.

In-chat commands:
  /search <term>   highlight matches in the transcript
  /clear           clear the conversation history
  /quit            leave the chat`,
	RunE: func(cmd *cobra.Command, args []string) error {
		groupID, _ := cmd.Flags().GetString("group")
		return runChat(cmd, groupID)
	},
}

func init() {
	chatCmd.Flags().String("group", "", "document group to answer from")
}

func runChat(cmd *cobra.Command, groupID string) error {
	ctx := cmd.Context()

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	backend := &remoteBackend{client: client}

	sessionID := uuid.New().String()
	engine := conversation.New(conversation.Deps{
		History:  backend,
		Answerer: backend,
		Clearer:  backend,
		Recorder: backend,
		Tokens:   backend,
	}, conversation.Options{
		SessionID: sessionID,
		GroupID:   groupID,
	})
	defer engine.Close()

	if err := engine.Restore(ctx); err != nil {
		printWarning("could not restore history: %v", err)
	}
	renderTranscript(engine.Messages(), conversation.Filter{})

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(os.Stderr, colorize(colorBold, "> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return scanner.Err()
		case line == "/clear":
			if err := engine.ClearHistory(ctx); err != nil {
				printError("clear failed: %v", err)
				continue
			}
			renderTranscript(engine.Messages(), conversation.Filter{})
			continue
		case strings.HasPrefix(line, "/search"):
			term := strings.TrimSpace(strings.TrimPrefix(line, "/search"))
			filter := conversation.Filter{SearchTerm: term}
			renderTranscript(conversation.Project(engine.Messages(), filter), filter)
			continue
		}

		engine.Sweep()
		if err := engine.SubmitTurn(ctx, line); err != nil {
			printError("send failed: %v", err)
			continue
		}
		renderLatest(engine.Messages())

		if engine.SurveyVisible() {
			runSurvey(cmd, engine, backend, sessionID)
		}
	}
	return scanner.Err()
}

// renderTranscript prints the full message log, applying search highlighting
// when a term is active.
func renderTranscript(msgs []conversation.Message, f conversation.Filter) {
	for _, m := range msgs {
		printMessage(m, f.SearchTerm)
	}
}

// renderLatest prints the final user/assistant pair after a turn.
func renderLatest(msgs []conversation.Message) {
	start := len(msgs) - 2
	if start < 0 {
		start = 0
	}
	for _, m := range msgs[start:] {
		printMessage(m, "")
	}
}

func printMessage(m conversation.Message, searchTerm string) {
	label := "Hey Me"
	color := colorCyan
	if m.Role == conversation.RoleUser {
		label = "You"
		color = colorGreen
	}

	text := m.Text
	if searchTerm != "" {
		var sb strings.Builder
		for _, seg := range conversation.Highlight(text, searchTerm) {
			if seg.Match {
				sb.WriteString(colorize(colorYellow, seg.Text))
			} else {
				sb.WriteString(seg.Text)
			}
		}
		text = sb.String()
	}

	fmt.Printf("%s %s\n%s\n\n", colorize(color, colorize(colorBold, label)), m.DisplayTime, text)
}

// runSurvey walks the user through the engagement survey inline.
func runSurvey(cmd *cobra.Command, engine *conversation.Engine, backend *remoteBackend, sessionID string) {
	form := conversation.NewSurveyForm()
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Fprint(os.Stderr, colorize(colorCyan, "How is the conversation going? Rate 1-5 (enter to skip): "))
	if !scanner.Scan() {
		engine.DismissSurvey()
		return
	}
	raw := strings.TrimSpace(scanner.Text())
	if raw == "" {
		engine.DismissSurvey()
		return
	}

	rating, err := strconv.Atoi(raw)
	if err != nil || form.SelectRating(rating) != nil {
		printWarning("rating must be a number from 1 to 5; skipping survey")
		engine.DismissSurvey()
		return
	}

	if form.ShowsReasons() {
		fmt.Fprintln(os.Stderr, "What went wrong? (comma-separated numbers, enter to skip)")
		for i, reason := range conversation.DissatisfactionReasons {
			fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, reason)
		}
		fmt.Fprint(os.Stderr, colorize(colorBold, "> "))
		if scanner.Scan() {
			for _, part := range strings.Split(scanner.Text(), ",") {
				n, err := strconv.Atoi(strings.TrimSpace(part))
				if err != nil || n < 1 || n > len(conversation.DissatisfactionReasons) {
					continue
				}
				form.ToggleReason(conversation.DissatisfactionReasons[n-1])
			}
		}
	}

	result, err := form.Submit()
	if err != nil {
		engine.DismissSurvey()
		return
	}

	if err := backend.submitSurvey(cmd.Context(), result, sessionID); err != nil {
		printWarning("could not submit survey: %v", err)
	}
	engine.CompleteSurvey()
	printSuccess("Thanks for the feedback!")
}
