package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/triage-ai/constitutional/internal/audit"
	"github.com/triage-ai/constitutional/internal/config"
	"github.com/triage-ai/constitutional/internal/engine"
	"github.com/triage-ai/constitutional/internal/storage"
)

var auditFlags struct {
	store string
	since time.Duration
	user  string
	limit int
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and maintain the audit store",
	Long:  `Query, summarize, and purge audit records in the configured store.`,
}

var auditPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete records older than the retention window",
	Long: `Delete audit records older than engine.audit_log_retention days. A
retention of zero deletes everything.`,
	Args: cobra.NoArgs,
	RunE: purgeAudit,
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recent audit records",
	Args:  cobra.NoArgs,
	RunE:  auditStats,
}

var auditLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List audit records for a user",
	Args:  cobra.NoArgs,
	RunE:  auditLogs,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditPurgeCmd)
	auditCmd.AddCommand(auditStatsCmd)
	auditCmd.AddCommand(auditLogsCmd)

	auditCmd.PersistentFlags().StringVar(&auditFlags.store, "store", "", "store: memory, sqlite, postgres, clickhouse, log (uses config if not specified)")

	auditStatsCmd.Flags().DurationVar(&auditFlags.since, "since", 24*time.Hour, "summarize records newer than this")

	auditLogsCmd.Flags().StringVar(&auditFlags.user, "user", "", "user id (required)")
	auditLogsCmd.Flags().IntVar(&auditFlags.limit, "limit", 100, "max records")
	auditLogsCmd.MarkFlagRequired("user") //nolint:errcheck // flag is defined above
}

// openTrail opens the configured store behind an audit logger. Unlike the
// server it does not fall back to the log sink: a CLI run against the wrong
// store should fail loudly.
func openTrail(cmd *cobra.Command) (*audit.Logger, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	kind := cfg.Audit.Store
	if auditFlags.store != "" {
		kind = auditFlags.store
	}

	logger := newLogger()
	sink, err := storage.Open(cmd.Context(), storage.Options{
		Kind:          storage.Kind(kind),
		SQLitePath:    cfg.Audit.SQLitePath,
		PostgresDSN:   cfg.Audit.PostgresDSN,
		ClickHouseDSN: cfg.Audit.ClickHouseDSN,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening audit store: %w", err)
	}

	var key []byte
	if cfg.Audit.Encrypt && cfg.Audit.Key != "" {
		if key, err = audit.DeriveKey(cfg.Audit.Key, nil); err != nil {
			sink.Close()
			return nil, nil, err
		}
	}
	trail, err := audit.NewLogger(sink, audit.Options{
		RetentionDays: cfg.Engine.AuditLogRetention,
		Key:           key,
		Encrypt:       cfg.Audit.Encrypt,
	}, logger)
	if err != nil {
		sink.Close()
		return nil, nil, err
	}
	return trail, cfg, nil
}

func purgeAudit(cmd *cobra.Command, args []string) error {
	trail, cfg, err := openTrail(cmd)
	if err != nil {
		return err
	}
	defer trail.Close()

	n, err := trail.CleanupOldLogs(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d audit records older than %d days\n", n, cfg.Engine.AuditLogRetention)
	return nil
}

func auditStats(cmd *cobra.Command, args []string) error {
	if auditFlags.since <= 0 {
		return fmt.Errorf("--since must be positive")
	}
	trail, _, err := openTrail(cmd)
	if err != nil {
		return err
	}
	defer trail.Close()

	end := time.Now()
	stats, err := trail.GetComplianceStats(cmd.Context(), end.Add(-auditFlags.since), end)
	if err != nil {
		return err
	}
	return writeJSON(cmd, stats)
}

func auditLogs(cmd *cobra.Command, args []string) error {
	if auditFlags.limit < 1 || auditFlags.limit > 1000 {
		return fmt.Errorf("--limit must be between 1 and 1000")
	}
	trail, _, err := openTrail(cmd)
	if err != nil {
		return err
	}
	defer trail.Close()

	logs, err := trail.LogsForUser(cmd.Context(), auditFlags.user, engine.LogQuery{Limit: auditFlags.limit})
	if err != nil {
		return err
	}
	if logs == nil {
		logs = []engine.AuditLog{}
	}
	return writeJSON(cmd, logs)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
