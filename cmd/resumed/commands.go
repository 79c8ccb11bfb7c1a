package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/velichko/resumed/internal/ingest"
	"github.com/velichko/resumed/internal/scoring"
)

func readUploadFile(path string) ([]byte, error) {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return nil, fmt.Errorf("only PDF resumes are supported, got %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <resume.pdf>",
	Short: "Upload a PDF resume for analysis",
	Long: `Upload a PDF resume to the running server. The resume is extracted,
chunked, indexed for semantic search, and scored for ATS compatibility.

Examples:
  resumed upload resume.pdf
  resumed upload resume.pdf --thread my-thread --owner alice`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		threadID, _ := cmd.Flags().GetString("thread")
		ownerID, _ := cmd.Flags().GetString("owner")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postFile(cmd.Context(), "/resume/upload", args[0], map[string]string{
			"thread_id": threadID,
			"owner_id":  ownerID,
		})
		if err != nil {
			return err
		}

		var result struct {
			ThreadID string `json:"thread_id"`
			Filename string `json:"filename"`
			Pages    int    `json:"pages"`
			Chunks   int    `json:"chunks"`
			Message  string `json:"message"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Uploaded %s (%d pages, %d chunks) to thread %s", result.Filename, result.Pages, result.Chunks, result.ThreadID)
		fmt.Println()
		fmt.Println(result.Message)
		return nil
	},
}

func init() {
	uploadCmd.Flags().String("thread", "", "thread id (default: a new thread)")
	uploadCmd.Flags().String("owner", "", "owner id for thread listing")
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a chat message to the agent",
	Long: `Send one chat message and print the agent's reply.

Examples:
  resumed chat "how can I improve my resume?" --thread my-thread
  resumed chat "analyze my resume" --thread my-thread --mode analysis`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		threadID, _ := cmd.Flags().GetString("thread")
		mode, _ := cmd.Flags().GetString("mode")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"message": strings.Join(args, " "),
		}
		if threadID != "" {
			req["thread_id"] = threadID
		}
		if mode != "" {
			req["mode"] = mode
		}

		resp, err := client.post(cmd.Context(), "/chat", req)
		if err != nil {
			return err
		}

		var reply struct {
			ThreadID string `json:"thread_id"`
			Content  string `json:"content"`
		}
		if err := decodeJSON(resp, &reply); err != nil {
			return err
		}

		if threadID == "" {
			printStatus("Thread", "%s", reply.ThreadID)
		}
		fmt.Println(reply.Content)
		return nil
	},
}

func init() {
	chatCmd.Flags().String("thread", "", "thread id (default: a new thread)")
	chatCmd.Flags().String("mode", "", "force a turn mode: analysis or chat")
}

// --- score ---

var scoreCmd = &cobra.Command{
	Use:   "score <resume.pdf>",
	Short: "Score a PDF resume locally without the server",
	Long: `Extract text from a PDF resume and compute its ATS compatibility
score offline. No server or model is required; suggestions come from the
deterministic rules.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readUploadFile(args[0])
		if err != nil {
			return err
		}

		text, pages, err := ingest.ExtractPDF(data)
		if err != nil {
			return fmt.Errorf("extracting text: %w", err)
		}

		r := scoring.Score(text)

		fmt.Printf("%s %d/100  (%d pages)\n", colorize(colorBold, "ATS score:"), r.Total, pages)
		fmt.Println()
		printStatus("Technical keywords", "%d/35", r.Breakdown.Technical)
		printStatus("Soft skills", "%d/20", r.Breakdown.Soft)
		printStatus("Action verbs", "%d/15", r.Breakdown.Verbs)
		printStatus("Formatting", "%d/30", r.Breakdown.Formatting)

		if len(r.MatchedKeywords) > 0 {
			fmt.Println()
			printStatus("Matched keywords", "%s", strings.Join(r.MatchedKeywords, ", "))
		}
		if len(r.MatchedVerbs) > 0 {
			printStatus("Matched verbs", "%s", strings.Join(r.MatchedVerbs, ", "))
		}

		fmt.Println()
		for _, s := range scoring.FallbackSuggestions(r) {
			fmt.Printf("  - %s\n", s)
		}
		return nil
	},
}

// --- threads ---

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Inspect conversation threads",
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threads for an owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		if owner == "" {
			return fmt.Errorf("--owner is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/threads?owner="+owner)
		if err != nil {
			return err
		}

		var threads []struct {
			ThreadID         string `json:"thread_id"`
			Filename         string `json:"filename"`
			ATSScore         *int   `json:"ats_score"`
			AnalysisComplete bool   `json:"analysis_complete"`
			UpdatedAt        string `json:"updated_at"`
		}
		if err := decodeJSON(resp, &threads); err != nil {
			return err
		}

		if len(threads) == 0 {
			fmt.Println("No threads found.")
			return nil
		}

		for _, t := range threads {
			score := "-"
			if t.ATSScore != nil {
				score = fmt.Sprintf("%d", *t.ATSScore)
			}
			name := t.Filename
			if name == "" {
				name = "(no resume)"
			}
			fmt.Printf("%s  %s  score=%s  %s\n",
				colorize(colorCyan, shortID(t.ThreadID)),
				t.UpdatedAt,
				score,
				name,
			)
		}
		return nil
	},
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one thread's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/threads/"+args[0])
		if err != nil {
			return err
		}

		var t struct {
			ThreadID         string `json:"thread_id"`
			OwnerID          string `json:"owner_id"`
			Filename         string `json:"filename"`
			Pages            int    `json:"pages"`
			Chunks           int    `json:"chunks"`
			ATSScore         *int   `json:"ats_score"`
			AnalysisComplete bool   `json:"analysis_complete"`
			CreatedAt        string `json:"created_at"`
			UpdatedAt        string `json:"updated_at"`
		}
		if err := decodeJSON(resp, &t); err != nil {
			return err
		}

		printStatus("Thread", "%s", t.ThreadID)
		if t.OwnerID != "" {
			printStatus("Owner", "%s", t.OwnerID)
		}
		if t.Filename != "" {
			printStatus("Resume", "%s (%d pages, %d chunks)", t.Filename, t.Pages, t.Chunks)
		}
		if t.ATSScore != nil {
			printStatus("ATS score", "%d/100", *t.ATSScore)
		}
		printStatus("Analyzed", "%t", t.AnalysisComplete)
		printStatus("Created", "%s", t.CreatedAt)
		printStatus("Updated", "%s", t.UpdatedAt)
		return nil
	},
}

var threadsHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Print a thread's conversation history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/threads/"+args[0]+"/history")
		if err != nil {
			return err
		}

		var messages []struct {
			Seq     int    `json:"seq"`
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		if err := decodeJSON(resp, &messages); err != nil {
			return err
		}

		if len(messages) == 0 {
			fmt.Println("No messages yet.")
			return nil
		}

		for _, m := range messages {
			label := m.Role
			if m.Role == "user" {
				label = colorize(colorCyan, "user")
			} else if m.Role == "assistant" {
				label = colorize(colorGreen, "assistant")
			}
			fmt.Printf("[%s]\n%s\n\n", label, m.Content)
		}
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	threadsListCmd.Flags().String("owner", "", "owner id to list threads for")
	threadsCmd.AddCommand(threadsListCmd)
	threadsCmd.AddCommand(threadsShowCmd)
	threadsCmd.AddCommand(threadsHistoryCmd)
}
