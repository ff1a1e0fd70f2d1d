package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/triage-ai/constitutional/internal/audit"
	"github.com/triage-ai/constitutional/internal/engine"
	"github.com/triage-ai/constitutional/internal/engine/detectors"
	"github.com/triage-ai/constitutional/internal/storage"
)

const ubuntuSample = "Ubuntu philosophy emphasizes community, sharing knowledge, and collective benefit for all people."

// run executes the root command with fresh flag state.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CAI_CONFIG_FILE", "")
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue) //nolint:errcheck // defaults always parse
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"screen": false, "config": false, "audit": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
	if rootCmd.Version != Version {
		t.Errorf("rootCmd.Version = %q, want %q", rootCmd.Version, Version)
	}
}

func TestScreen_JSON(t *testing.T) {
	out, err := run(t, "", "screen", "--query", "What is Ubuntu?", "--output", ubuntuSample)
	if err != nil {
		t.Fatalf("screen: %v", err)
	}

	var res engine.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not a result: %v\n%s", err, out)
	}
	if !res.IsValid || res.ValidatedOutput != ubuntuSample {
		t.Errorf("expected clean pass, got valid=%v output=%q", res.IsValid, res.ValidatedOutput)
	}
	if res.Metadata.Context == nil || res.Metadata.Context.UserID != "cli" {
		t.Errorf("expected request context with user cli, got %+v", res.Metadata.Context)
	}
}

func TestScreen_Stdin(t *testing.T) {
	out, err := run(t, "Contact me at john.doe@example.com and call 555-1234.\n", "screen", "--format", "text")
	if err != nil {
		t.Fatalf("screen: %v", err)
	}
	if strings.Contains(out, "john.doe@example.com") {
		t.Errorf("PII leaked into output:\n%s", out)
	}
	if !strings.Contains(out, detectors.DefaultRedactionToken) {
		t.Errorf("expected redaction token in output:\n%s", out)
	}
	if !strings.Contains(out, string(engine.ViolationPrivacy)) {
		t.Errorf("expected privacy violations listed:\n%s", out)
	}
}

func TestScreen_StrictFail(t *testing.T) {
	text := ubuntuSample + " Email me at jane@corp.io."

	if _, err := run(t, "", "screen", "--output", text, "--fail"); err != nil {
		t.Errorf("lenient mode should pass, got %v", err)
	}

	out, err := run(t, "", "screen", "--output", text, "--strict", "--fail", "--format", "text")
	if !errors.Is(err, errRejected) {
		t.Fatalf("expected errRejected, got %v", err)
	}
	if !strings.HasPrefix(out, "FAIL") {
		t.Errorf("expected FAIL verdict, got:\n%s", out)
	}

	// without --fail a rejection is still a successful run
	if _, err := run(t, "", "screen", "--output", text, "--strict"); err != nil {
		t.Errorf("rejection without --fail should not error, got %v", err)
	}
}

func TestScreen_BadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown format", []string{"screen", "--output", "x", "--format", "xml"}},
		{"positional args", []string{"screen", "extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, "", tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestConfig_PrintsLayeredYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "constitutional.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  strict_mode: true\n  bias_severity_threshold: high\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CAI_AUDIT_KEY", "do-not-print")

	out, err := run(t, "", "config", "--config", path)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	for _, want := range []string{"strict_mode: true", "bias_severity_threshold: high", "http_port: 8080"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "do-not-print") {
		t.Errorf("secret printed:\n%s", out)
	}
}

func TestConfig_MissingFile(t *testing.T) {
	if _, err := run(t, "", "config", "--config", filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

// sqliteConfig writes a config pointing the audit store at a fresh SQLite
// file seeded with recs.
func sqliteConfig(t *testing.T, recs ...*audit.Record) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "audit.db")

	sink, err := storage.NewSQLiteSink(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) > 0 {
		if err := sink.Write(context.Background(), recs); err != nil {
			t.Fatal(err)
		}
	}
	sink.Close()

	cfgPath := filepath.Join(dir, "constitutional.yaml")
	body := "audit:\n  store: sqlite\n  sqlite_path: " + dbPath + "\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func record(id, user string, ts time.Time) *audit.Record {
	return &audit.Record{
		ID:              id,
		UserID:          user,
		Query:           "q",
		OriginalOutput:  "o",
		ValidatedOutput: "o",
		ComplianceScore: 90,
		IsValid:         true,
		Timestamp:       ts,
		Tier:            "free",
	}
}

func TestAudit_Purge(t *testing.T) {
	now := time.Now()
	cfg := sqliteConfig(t,
		record("old", "u1", now.AddDate(0, 0, -200)),
		record("new", "u1", now.Add(-time.Hour)),
	)

	out, err := run(t, "", "audit", "purge", "--config", cfg)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if !strings.Contains(out, "Deleted 1 audit records older than 90 days") {
		t.Errorf("unexpected output: %q", out)
	}

	out, err = run(t, "", "audit", "logs", "--config", cfg, "--user", "u1")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	var logs []engine.AuditLog
	if err := json.Unmarshal([]byte(out), &logs); err != nil {
		t.Fatalf("decode logs: %v\n%s", err, out)
	}
	if len(logs) != 1 || logs[0].ID != "new" {
		t.Errorf("expected only the recent record to survive, got %+v", logs)
	}
}

func TestAudit_Stats(t *testing.T) {
	now := time.Now()
	failed := record("b", "u2", now.Add(-2*time.Hour))
	failed.IsValid = false
	failed.ComplianceScore = 40
	cfg := sqliteConfig(t, record("a", "u1", now.Add(-time.Hour)), failed)

	out, err := run(t, "", "audit", "stats", "--config", cfg)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var stats audit.ComplianceStats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v\n%s", err, out)
	}
	if stats.Total != 2 || stats.Passed != 1 || stats.Failed != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestAudit_FlagErrors(t *testing.T) {
	cfg := sqliteConfig(t)
	tests := []struct {
		name string
		args []string
	}{
		{"logs without user", []string{"audit", "logs", "--config", cfg}},
		{"logs limit too large", []string{"audit", "logs", "--config", cfg, "--user", "u", "--limit", "5000"}},
		{"stats negative window", []string{"audit", "stats", "--config", cfg, "--since=-1h"}},
		{"unknown store", []string{"audit", "purge", "--config", cfg, "--store", "mongo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, "", tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}
