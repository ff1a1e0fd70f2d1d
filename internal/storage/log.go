package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/constitutional/internal/audit"
)

// PreviewLength is the max runes of query and output text a LogSink emits.
const PreviewLength = 500

// LogSink is a write-only fallback for local development. It logs each record
// as structured JSON via zap; reads return nothing.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(_ context.Context, records []*audit.Record) error {
	for _, r := range records {
		fields := []zap.Field{
			zap.String("id", r.ID),
			zap.String("user_id", r.UserID),
			zap.String("tier", r.Tier),
			zap.Bool("is_valid", r.IsValid),
			zap.Float64("compliance_score", r.ComplianceScore),
			zap.Int64("processing_time_ms", r.ProcessingTimeMs),
			zap.Time("timestamp", r.Timestamp),
			zap.String("query_preview", TruncateText(r.Query, PreviewLength)),
			zap.String("validated_output_preview", TruncateText(r.ValidatedOutput, PreviewLength)),
			zap.Bool("encrypted", r.Encrypted),
		}
		if !r.Encrypted {
			fields = append(fields, zap.ByteString("violations", r.Violations))
		}
		s.logger.Info("audit_record", fields...)
	}
	return nil
}

func (s *LogSink) QueryUser(context.Context, string, time.Time, int) ([]*audit.Record, error) {
	return nil, nil
}

func (s *LogSink) QueryRange(context.Context, time.Time, time.Time) ([]*audit.Record, error) {
	return nil, nil
}

func (s *LogSink) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *LogSink) Close() error { return nil }

// TruncateText returns the first maxLen runes of s. It never splits a
// multi-byte UTF-8 character.
func TruncateText(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
