package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/mcpd/internal/config"
	"github.com/kalambet/mcpd/internal/ingest"
)

var (
	tenantFlag   string
	categoryFlag string
	paramsFlag   string
	limitFlag    int
	typeFlag     string
	formatFlag   string
	fileFlag     string
	textFlag     string
)

var ctxCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage per-tenant context values",
}

var ctxSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a context value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/context", map[string]any{
			"tenant": tenantFlag,
			"key":    args[0],
			"value":  args[1],
		})
		if err != nil {
			return err
		}
		var out struct {
			Success bool   `json:"success"`
			Key     string `json:"key"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Stored %q for tenant %s", out.Key, tenantFlag)
		return nil
	},
}

var ctxGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Retrieve a context value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/context/%s/%s", tenantFlag, args[0])
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var out struct {
			Value any  `json:"value"`
			Found bool `json:"found"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		if !out.Found {
			printWarning("no value for key %q (tenant %s)", args[0], tenantFlag)
			return nil
		}
		rendered, err := json.MarshalIndent(out.Value, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(rendered))
		return nil
	},
}

var ctxClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all context for a tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/context/"+tenantFlag)
		if err != nil {
			return err
		}
		var out struct {
			Cleared int `json:"cleared"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Cleared %d context entries for tenant %s", out.Cleared, tenantFlag)
		return nil
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List available tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/tools"
		if categoryFlag != "" {
			path += "?category=" + categoryFlag
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var out struct {
			Tools []struct {
				Name        string `json:"name"`
				Description string `json:"description"`
				Category    string `json:"category"`
			} `json:"tools"`
			Count int `json:"count"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		if out.Count == 0 {
			printWarning("no tools registered")
			return nil
		}
		for _, t := range out.Tools {
			fmt.Printf("  %s %s\n", colorize(colorBold, t.Name), colorize(colorCyan, "["+t.Category+"]"))
			fmt.Printf("      %s\n", t.Description)
		}
		return nil
	},
}

var execCmd = &cobra.Command{
	Use:   "exec <tool>",
	Short: "Execute a tool by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]any{}
		if paramsFlag != "" {
			if err := json.Unmarshal([]byte(paramsFlag), &params); err != nil {
				return fmt.Errorf("--params must be a JSON object: %w", err)
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/tools/"+args[0]+"/execute", map[string]any{
			"parameters": params,
		})
		if err != nil {
			return err
		}
		var out struct {
			Success bool   `json:"success"`
			Result  any    `json:"result"`
			Error   string `json:"error"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		if !out.Success {
			printError("%s failed: %s", args[0], out.Error)
			return fmt.Errorf("tool execution failed")
		}
		rendered, err := json.MarshalIndent(out.Result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(rendered))
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find documents similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/search", map[string]any{
			"query":  strings.Join(args, " "),
			"tenant": tenantFlag,
			"type":   typeFlag,
			"limit":  limitFlag,
		})
		if err != nil {
			return err
		}
		var out struct {
			Results []struct {
				ID    string  `json:"id"`
				Score float64 `json:"score"`
			} `json:"results"`
			Count int `json:"count"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		if out.Count == 0 {
			printWarning("no matches")
			return nil
		}
		for i, r := range out.Results {
			fmt.Printf("  %d. %s (score %.3f)\n", i+1, r.ID, r.Score)
		}
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <command>",
	Short: "Send a natural-language command to the processor",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/command", map[string]any{
			"command": strings.Join(args, " "),
			"tenant":  tenantFlag,
		})
		if err != nil {
			return err
		}
		var out struct {
			Success   bool   `json:"success"`
			Action    string `json:"action"`
			Result    any    `json:"result"`
			Error     string `json:"error"`
			ErrorKind string `json:"error_kind"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		if !out.Success {
			printError("[%s] %s", out.ErrorKind, out.Error)
			return fmt.Errorf("command failed")
		}
		printStatus("Action", "%s", out.Action)
		rendered, err := json.MarshalIndent(out.Result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(rendered))
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Queue a document for embedding and indexing",
	RunE: func(cmd *cobra.Command, args []string) error {
		if textFlag == "" && fileFlag == "" {
			return fmt.Errorf("one of --text or --file is required")
		}

		body := map[string]any{
			"tenant": tenantFlag,
			"type":   typeFlag,
			"format": formatFlag,
		}
		if textFlag != "" {
			body["content"] = textFlag
		} else {
			data, err := os.ReadFile(fileFlag)
			if err != nil {
				return fmt.Errorf("reading %s: %w", fileFlag, err)
			}
			body["content"] = base64.StdEncoding.EncodeToString(data)
			body["encoding"] = "base64"
			if formatFlag == "" {
				body["format"] = formatFromExtension(fileFlag)
			}
			body["metadata"] = map[string]string{"filename": filepath.Base(fileFlag)}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/ingest", body)
		if err != nil {
			return err
		}
		var out struct {
			JobID string `json:"job_id"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Queued ingest job %s", out.JobID)
		return nil
	},
}

func formatFromExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return ingest.FormatPDF
	case ".html", ".htm":
		return ingest.FormatHTML
	default:
		return ingest.FormatText
	}
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, info := range config.ShowAll(cfg) {
			printStatus(info.Key, "%s", info.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}
		printSuccess("Set %s", args[0])
		return nil
	},
}

func init() {
	ctxCmd.AddCommand(ctxSetCmd, ctxGetCmd, ctxClearCmd)
	ctxCmd.PersistentFlags().StringVar(&tenantFlag, "tenant", "default", "tenant the context belongs to")

	toolsCmd.Flags().StringVar(&categoryFlag, "category", "", "filter tools by category")

	execCmd.Flags().StringVar(&paramsFlag, "params", "", "tool parameters as a JSON object")

	searchCmd.Flags().StringVar(&tenantFlag, "tenant", "default", "tenant whose documents to search")
	searchCmd.Flags().StringVar(&typeFlag, "type", "", "restrict results to a document type")
	searchCmd.Flags().IntVar(&limitFlag, "limit", 0, "maximum results (0 uses the server default)")

	askCmd.Flags().StringVar(&tenantFlag, "tenant", "default", "tenant the command runs against")

	ingestCmd.Flags().StringVar(&tenantFlag, "tenant", "default", "tenant the document belongs to")
	ingestCmd.Flags().StringVar(&typeFlag, "type", "document", "document type to index under")
	ingestCmd.Flags().StringVar(&formatFlag, "format", "", "content format (text, html, pdf); detected when empty")
	ingestCmd.Flags().StringVar(&textFlag, "text", "", "inline text to ingest")
	ingestCmd.Flags().StringVar(&fileFlag, "file", "", "path of a file to ingest")

	configCmd.AddCommand(configShowCmd, configSetCmd)
}
