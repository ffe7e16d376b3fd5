package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lavrabot/lavra/internal/config"
	"github.com/lavrabot/lavra/internal/ingest"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a document into the knowledge base",
	Long: `Ingest a document into the knowledge base.

Examples:
  lavra ingest --text "A calagem deve ser feita 90 dias antes do plantio" --tags solo
  lavra ingest --file ./manual-irrigacao.pdf --title "Manual de irrigação" --tags irrigacao
  lavra ingest --file ./notas.md --tags notas`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		title, _ := cmd.Flags().GetString("title")
		tagsStr, _ := cmd.Flags().GetString("tags")

		if text == "" && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}

		var tags []string
		if tagsStr != "" {
			tags = strings.Split(tagsStr, ",")
			for i := range tags {
				tags[i] = strings.TrimSpace(tags[i])
			}
		}

		req := map[string]any{
			"source": "cli",
		}
		if tags != nil {
			req["tags"] = tags
		}
		if title != "" {
			req["title"] = title
		}

		switch {
		case text != "":
			req["content"] = text
		case file != "":
			content, err := readDocument(file)
			if err != nil {
				return err
			}
			req["content"] = content
			if title == "" {
				req["title"] = filepath.Base(file)
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/ingest", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued doc %s", result["id"])
		return nil
	},
}

// readDocument loads a file as text, extracting plain text from PDFs.
func readDocument(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return ingest.ExtractPDFText(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return string(data), nil
}

func init() {
	ingestCmd.Flags().String("text", "", "text content to ingest")
	ingestCmd.Flags().String("file", "", "file path to ingest (PDF or plain text)")
	ingestCmd.Flags().String("title", "", "title for the document")
	ingestCmd.Flags().String("tags", "", "comma-separated tags")
}

// --- users ---

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage registered WhatsApp users",
}

var usersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a user so the assistant answers their number",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		phone, _ := cmd.Flags().GetString("phone")
		email, _ := cmd.Flags().GetString("email")

		if name == "" || phone == "" {
			return fmt.Errorf("--name and --phone are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"name": name, "phone": phone}
		if email != "" {
			req["email"] = email
		}
		resp, err := client.post("/users", req)
		if err != nil {
			return err
		}

		var result struct {
			ID    string `json:"id"`
			Phone string `json:"phone"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Registered %s (%s)", name, result.Phone)
		return nil
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered users",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/users")
		if err != nil {
			return err
		}

		var result struct {
			Users []struct {
				Name   string `json:"name"`
				Phone  string `json:"phone"`
				Active bool   `json:"active"`
			} `json:"users"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Users) == 0 {
			fmt.Println("No users registered.")
			return nil
		}

		for _, u := range result.Users {
			state := colorize(colorGreen, "active")
			if !u.Active {
				state = colorize(colorYellow, "inactive")
			}
			fmt.Printf("%s  %s  %s\n", colorize(colorCyan, u.Phone), state, u.Name)
		}
		return nil
	},
}

var usersActivateCmd = &cobra.Command{
	Use:   "activate <phone>",
	Short: "Reactivate a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setUserActive(args[0], true)
	},
}

var usersDeactivateCmd = &cobra.Command{
	Use:   "deactivate <phone>",
	Short: "Deactivate a user without deleting them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setUserActive(args[0], false)
	},
}

func setUserActive(phone string, active bool) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	resp, err := client.patch("/users/"+phone, map[string]any{"active": active})
	if err != nil {
		return err
	}

	var result map[string]any
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}

	if active {
		printSuccess("Activated %s", phone)
	} else {
		printSuccess("Deactivated %s", phone)
	}
	return nil
}

func init() {
	usersAddCmd.Flags().String("name", "", "user's name")
	usersAddCmd.Flags().String("phone", "", "WhatsApp number (digits, country code included)")
	usersAddCmd.Flags().String("email", "", "optional email")
	usersCmd.AddCommand(usersAddCmd)
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersActivateCmd)
	usersCmd.AddCommand(usersDeactivateCmd)
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "List recent assistant interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/interactions")
		if err != nil {
			return err
		}

		var result struct {
			Interactions []struct {
				ID         string `json:"id"`
				SessionKey string `json:"session_key"`
				Question   string `json:"question"`
				Status     string `json:"status"`
				CreatedAt  string `json:"created_at"`
			} `json:"interactions"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Interactions) == 0 {
			fmt.Println("No interactions found.")
			return nil
		}

		for _, ix := range result.Interactions {
			question := ix.Question
			if len(question) > 80 {
				question = question[:80] + "..."
			}
			fmt.Printf("%s  %s  %s  %s\n",
				colorize(colorCyan, ix.SessionKey),
				ix.CreatedAt,
				ix.Status,
				question,
			)
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
