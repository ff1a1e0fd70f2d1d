package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/triage-ai/constitutional/internal/audit"
	"github.com/triage-ai/constitutional/internal/store"
)

// Kind names an audit storage backend.
type Kind string

const (
	KindMemory     Kind = "memory"
	KindSQLite     Kind = "sqlite"
	KindPostgres   Kind = "postgres"
	KindClickHouse Kind = "clickhouse"
	KindLog        Kind = "log"
)

// Options selects and configures a backend.
type Options struct {
	Kind          Kind
	SQLitePath    string
	PostgresDSN   string
	ClickHouseDSN string
}

// Open builds the sink for opts.Kind. An empty kind picks ClickHouse when its
// DSN is set and the log sink otherwise.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (audit.Sink, error) {
	kind := opts.Kind
	if kind == "" {
		kind = KindLog
		if opts.ClickHouseDSN != "" {
			kind = KindClickHouse
		}
	}

	switch kind {
	case KindMemory:
		return NewMemorySink(), nil
	case KindSQLite:
		s, err := NewSQLiteSink(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindPostgres:
		if opts.PostgresDSN == "" {
			return nil, fmt.Errorf("Open: postgres audit store requires a DSN")
		}
		s, err := store.Open(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindClickHouse:
		if opts.ClickHouseDSN == "" {
			return nil, fmt.Errorf("Open: clickhouse audit store requires a DSN")
		}
		s, err := NewClickHouseSink(ctx, opts.ClickHouseDSN, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindLog:
		return NewLogSink(logger), nil
	default:
		return nil, fmt.Errorf("Open: unknown audit store %q", kind)
	}
}
