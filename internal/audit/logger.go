package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/triage-ai/constitutional/internal/engine"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	defaultRetentionDays = 90
	maxBuffered          = 100_000
	flushTimeout         = 10 * time.Second
	drainTimeout         = 5 * time.Second
)

// Options configures a Logger.
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
	// RetentionDays bounds reads and sweeps. Zero hides every record, as with
	// an engine audit_log_retention of 0; a negative value selects the
	// 90-day default.
	RetentionDays int
	// Key is the 32-byte AES key. See DeriveKey.
	Key     []byte
	Encrypt bool
}

// Logger buffers audit records and persists them in batches. A flush is
// triggered when the buffer reaches BatchSize or every FlushInterval,
// whichever comes first. Log never blocks on storage.
type Logger struct {
	sink      Sink
	sealer    *sealer
	logger    *zap.Logger
	batchSize int
	interval  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	buffer    []*Record
	retention int

	// flushMu serializes flushes so timer and manual flushes never split a batch
	flushMu sync.Mutex

	kick      chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewLogger starts the background flush loop. If encryption is requested
// without a key, it is disabled with a warning.
func NewLogger(sink Sink, opts Options, logger *zap.Logger) (*Logger, error) {
	if sink == nil {
		return nil, errors.New("NewLogger: sink is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.RetentionDays < 0 {
		opts.RetentionDays = defaultRetentionDays
	}

	l := &Logger{
		sink:      sink,
		logger:    logger,
		batchSize: opts.BatchSize,
		interval:  opts.FlushInterval,
		now:       time.Now,
		retention: opts.RetentionDays,
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	if opts.Encrypt {
		s, err := newSealer(opts.Key)
		switch {
		case errors.Is(err, ErrNoKey):
			logger.Warn("audit encryption requested but no key configured, storing violations unencrypted")
		case err != nil:
			return nil, fmt.Errorf("NewLogger: %w", err)
		default:
			l.sealer = s
		}
	}

	go l.run()
	return l, nil
}

// Log converts entry to a Record and queues it.
func (l *Logger) Log(entry engine.AuditLog) {
	rec, err := l.toRecord(entry)
	if err != nil {
		l.logger.Error("audit record encoding failed, dropping violations payload",
			zap.String("user_id", entry.UserID),
			zap.Error(err),
		)
	}

	l.mu.Lock()
	if len(l.buffer) >= maxBuffered {
		l.mu.Unlock()
		l.logger.Warn("audit buffer full, dropping record",
			zap.String("id", rec.ID),
			zap.String("user_id", rec.UserID),
		)
		return
	}
	l.buffer = append(l.buffer, rec)
	full := len(l.buffer) >= l.batchSize
	l.mu.Unlock()

	if full {
		select {
		case l.kick <- struct{}{}:
		default:
		}
	}
}

func (l *Logger) toRecord(entry engine.AuditLog) (*Record, error) {
	rec := &Record{
		ID:               entry.ID,
		UserID:           entry.UserID,
		Query:            entry.Query,
		OriginalOutput:   entry.OriginalOutput,
		ValidatedOutput:  entry.ValidatedOutput,
		ComplianceScore:  entry.ComplianceScore,
		IsValid:          entry.IsValid,
		Timestamp:        entry.Timestamp,
		Tier:             entry.Tier,
		ProcessingTimeMs: entry.ProcessingTimeMs,
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now()
	}

	violations := entry.Violations
	if violations == nil {
		violations = []engine.Violation{}
	}
	payload, err := json.Marshal(violations)
	if err != nil {
		return rec, fmt.Errorf("toRecord: %w", err)
	}
	if l.sealer != nil {
		sealed, err := l.sealer.seal(payload)
		if err != nil {
			return rec, fmt.Errorf("toRecord: %w", err)
		}
		rec.Violations = sealed
		rec.Encrypted = true
		return rec, nil
	}
	rec.Violations = payload
	return rec, nil
}

func (l *Logger) run() {
	defer close(l.stopped)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.kick:
			l.flushInBackground()
		case <-ticker.C:
			l.flushInBackground()
		case <-l.done:
			return
		}
	}
}

func (l *Logger) flushInBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	// failures are logged and re-queued by Flush
	_ = l.Flush(ctx)
}

// Flush writes every buffered record. On failure the batch is put back at the
// front of the buffer for the next attempt.
func (l *Logger) Flush(ctx context.Context) error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	batch := l.buffer
	l.buffer = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := l.sink.Write(ctx, batch); err != nil {
		l.mu.Lock()
		l.buffer = append(batch, l.buffer...)
		l.mu.Unlock()
		l.logger.Error("audit flush failed, batch re-queued",
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
		return fmt.Errorf("Flush: %w", err)
	}

	l.logger.Debug("audit batch flushed", zap.Int("batch_size", len(batch)))
	return nil
}

// SetRetention changes the retention window used by reads and sweeps.
func (l *Logger) SetRetention(days int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.retention = days
}

// Retention returns the retention window in days.
func (l *Logger) Retention() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retention
}

// Buffered returns the number of records waiting to be flushed.
func (l *Logger) Buffered() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffer)
}

// cutoff is the oldest timestamp still inside the retention window.
// Records at or before it are expired.
func (l *Logger) cutoff() time.Time {
	return l.now().AddDate(0, 0, -l.Retention())
}

// LogsForUser returns a user's unexpired records, newest first, including
// those not yet flushed.
func (l *Logger) LogsForUser(ctx context.Context, userID string, q engine.LogQuery) ([]engine.AuditLog, error) {
	since := l.cutoff()
	if q.Since.After(since) {
		since = q.Since
	}

	// hold flushMu so an in-flight batch is visible in exactly one place
	l.flushMu.Lock()
	stored, err := l.sink.QueryUser(ctx, userID, since, q.Limit)
	if err != nil {
		l.flushMu.Unlock()
		return nil, fmt.Errorf("LogsForUser: %w", err)
	}
	l.mu.Lock()
	var pending []*Record
	for _, r := range l.buffer {
		if r.UserID == userID && r.Timestamp.After(since) {
			pending = append(pending, r)
		}
	}
	l.mu.Unlock()
	l.flushMu.Unlock()

	records := mergeRecords(stored, pending)
	sort.SliceStable(records, func(i, j int) bool { return records[i].Timestamp.After(records[j].Timestamp) })
	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
	}

	out := make([]engine.AuditLog, 0, len(records))
	for _, r := range records {
		out = append(out, l.toAuditLog(r))
	}
	return out, nil
}

// GetLogsForUser is LogsForUser with default options.
func (l *Logger) GetLogsForUser(ctx context.Context, userID string) ([]engine.AuditLog, error) {
	return l.LogsForUser(ctx, userID, engine.LogQuery{})
}

// CleanupOldLogs deletes stored records outside the retention window. The
// unflushed buffer is left alone.
func (l *Logger) CleanupOldLogs(ctx context.Context) (int64, error) {
	cutoff := l.cutoff()
	n, err := l.sink.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("CleanupOldLogs: %w", err)
	}
	l.logger.Info("audit retention sweep completed",
		zap.Int64("deleted", n),
		zap.Time("cutoff", cutoff),
	)
	return n, nil
}

// Close stops the flush loop, drains the buffer, and closes the sink.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		<-l.stopped

		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		flushErr := l.Flush(ctx)
		err = errors.Join(flushErr, l.sink.Close())
	})
	return err
}

func (l *Logger) toAuditLog(r *Record) engine.AuditLog {
	return engine.AuditLog{
		ID:               r.ID,
		UserID:           r.UserID,
		Query:            r.Query,
		OriginalOutput:   r.OriginalOutput,
		ValidatedOutput:  r.ValidatedOutput,
		Violations:       l.decodeViolations(r),
		ComplianceScore:  r.ComplianceScore,
		IsValid:          r.IsValid,
		Timestamp:        r.Timestamp,
		Tier:             r.Tier,
		ProcessingTimeMs: r.ProcessingTimeMs,
	}
}

// decodeViolations returns nil when the payload cannot be read, e.g. an
// encrypted record read without the key.
func (l *Logger) decodeViolations(r *Record) []engine.Violation {
	payload := r.Violations
	if len(payload) == 0 {
		return nil
	}
	if r.Encrypted {
		if l.sealer == nil {
			l.logger.Warn("encrypted audit record read without a key", zap.String("id", r.ID))
			return nil
		}
		plain, err := l.sealer.open(payload)
		if err != nil {
			l.logger.Warn("audit record decryption failed", zap.String("id", r.ID), zap.Error(err))
			return nil
		}
		payload = plain
	}
	var vs []engine.Violation
	if err := json.Unmarshal(payload, &vs); err != nil {
		l.logger.Warn("audit record violations unreadable", zap.String("id", r.ID), zap.Error(err))
		return nil
	}
	return vs
}

// mergeRecords concatenates record sets, dropping repeated ids.
func mergeRecords(sets ...[]*Record) []*Record {
	seen := make(map[string]bool)
	var out []*Record
	for _, set := range sets {
		for _, r := range set {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			out = append(out, r)
		}
	}
	return out
}
