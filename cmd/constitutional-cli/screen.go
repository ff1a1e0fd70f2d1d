package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/triage-ai/constitutional/internal/engine"
	"github.com/triage-ai/constitutional/internal/engine/detectors"
)

// errRejected is returned with --fail when the output does not pass.
var errRejected = errors.New("output rejected")

var screenFlags struct {
	query  string
	output string
	userID string
	tier   string
	format string
	strict bool
	fail   bool
}

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Screen a model response",
	Long: `Run a model response through the screening engine and print the result.

The response is read from --output, or from stdin when --output is omitted.
Nothing is written to the audit store.`,
	Example: `  constitutional screen --query "Tell me about nurses" --output "Nurses are all women."
  echo "Contact me at jane@corp.io" | constitutional screen --format text`,
	Args: cobra.NoArgs,
	RunE: runScreen,
}

func init() {
	rootCmd.AddCommand(screenCmd)

	screenCmd.Flags().StringVarP(&screenFlags.query, "query", "q", "", "the user query that produced the output")
	screenCmd.Flags().StringVarP(&screenFlags.output, "output", "o", "", "model output to screen (default: stdin)")
	screenCmd.Flags().StringVar(&screenFlags.userID, "user", "cli", "user id recorded in the result context")
	screenCmd.Flags().StringVar(&screenFlags.tier, "tier", "free", "service tier recorded in the result context")
	screenCmd.Flags().StringVar(&screenFlags.format, "format", "json", "output format: json, text")
	screenCmd.Flags().BoolVar(&screenFlags.strict, "strict", false, "reject on any violation")
	screenCmd.Flags().BoolVar(&screenFlags.fail, "fail", false, "exit non-zero when the output is rejected")
}

func runScreen(cmd *cobra.Command, args []string) error {
	if screenFlags.format != "json" && screenFlags.format != "text" {
		return fmt.Errorf("unknown format %q (want json or text)", screenFlags.format)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engineCfg := cfg.Engine
	if screenFlags.strict {
		engineCfg.StrictMode = true
	}
	engineCfg.AuditLoggingEnabled = false

	output := screenFlags.output
	if !cmd.Flags().Changed("output") {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		output = strings.TrimRight(string(raw), "\n")
	}

	set, err := detectors.NewSet(detectors.DefaultSetConfig())
	if err != nil {
		return fmt.Errorf("building detectors: %w", err)
	}
	orch, err := engine.NewOrchestrator(set, engineCfg, newLogger())
	if err != nil {
		return err
	}

	result := orch.ValidateOutput(cmd.Context(), screenFlags.query, output, &engine.RequestContext{
		UserID:    screenFlags.userID,
		Tier:      screenFlags.tier,
		RequestID: uuid.NewString(),
	})

	w := cmd.OutOrStdout()
	if screenFlags.format == "text" {
		printResultText(w, result)
	} else {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	}

	if screenFlags.fail && !result.IsValid {
		return errRejected
	}
	return nil
}

func printResultText(w io.Writer, r *engine.Result) {
	verdict := "PASS"
	if !r.IsValid {
		verdict = "FAIL"
	}
	fmt.Fprintf(w, "%s  score=%.1f  time=%.1fms\n", verdict, r.ComplianceScore, r.ProcessingTimeMs)
	for _, v := range r.Violations {
		fmt.Fprintf(w, "  [%s] %s: %s\n", v.Severity, v.Type, v.Description)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, r.ValidatedOutput)
}
