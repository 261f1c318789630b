// Package archive persists call records to SQLite so audit trails survive
// the session that produced them.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/verascope-ai/verascope/pkg/models"
	_ "modernc.org/sqlite"
)

// Archive writes and queries call records in a dedicated SQLite database.
type Archive struct {
	db      *sql.DB
	cfg     models.ArchiveConfig
	done    chan struct{}
	wg      sync.WaitGroup
	include map[string]bool
}

// New opens the archive database and creates the schema.
func New(cfg models.ArchiveConfig) (*Archive, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive db: %w", err)
	}

	inc := make(map[string]bool)
	for _, v := range cfg.Include {
		inc[v] = true
	}

	a := &Archive{
		db:      db,
		cfg:     cfg,
		done:    make(chan struct{}),
		include: inc,
	}

	if cfg.RetentionDays > 0 {
		a.wg.Add(1)
		go a.retentionLoop()
	}

	return a, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS call_records (
		run_id             TEXT NOT NULL,
		call_id            TEXT NOT NULL,
		label              TEXT NOT NULL,
		action             TEXT NOT NULL,
		input_fingerprint  TEXT NOT NULL,
		output_fingerprint TEXT NOT NULL,
		output_preview     TEXT,
		model              TEXT NOT NULL,
		seed               INTEGER NOT NULL,
		raw_input          TEXT,
		raw_output         TEXT,
		prompt_tokens      INTEGER,
		completion_tokens  INTEGER,
		total_tokens       INTEGER,
		latency_ms         INTEGER,
		verified           INTEGER NOT NULL DEFAULT 0,
		verification_match INTEGER,
		created_at         DATETIME NOT NULL,
		PRIMARY KEY (run_id, call_id)
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_records_model ON call_records(model)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_records_created ON call_records(created_at)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_records_label ON call_records(label)`)
	return err
}

// Store inserts or replaces a call record, respecting the include filters
// and body-size cap. Replacement covers verification updates to an already
// archived record.
func (a *Archive) Store(ctx context.Context, runID string, rec models.CallRecord) error {
	if a == nil || a.db == nil {
		return nil
	}

	rawInput := rec.RawInput
	rawOutput := rec.RawOutput
	if len(a.include) > 0 {
		if !a.include["inputs"] {
			rawInput = ""
		}
		if !a.include["outputs"] {
			rawOutput = ""
		}
	}
	if a.cfg.MaxBodySize > 0 {
		if len(rawInput) > a.cfg.MaxBodySize {
			rawInput = rawInput[:a.cfg.MaxBodySize]
		}
		if len(rawOutput) > a.cfg.MaxBodySize {
			rawOutput = rawOutput[:a.cfg.MaxBodySize]
		}
	}

	var match sql.NullBool
	if rec.VerificationMatch != nil {
		match = sql.NullBool{Bool: *rec.VerificationMatch, Valid: true}
	}

	_, err := a.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO call_records
		(run_id, call_id, label, action, input_fingerprint, output_fingerprint,
		 output_preview, model, seed, raw_input, raw_output,
		 prompt_tokens, completion_tokens, total_tokens, latency_ms,
		 verified, verification_match, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.ID, rec.Label, rec.Action,
		rec.InputFingerprint, rec.OutputFingerprint,
		rec.OutputPreview, rec.Model, rec.Seed, rawInput, rawOutput,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.LatencyMs,
		rec.Verified, match, rec.CreatedAt,
	)
	return err
}

// Query returns archived records matching the given options, newest first.
func (a *Archive) Query(ctx context.Context, opts models.ArchiveQueryOpts) ([]models.CallRecord, error) {
	q := `SELECT call_id, label, action, input_fingerprint, output_fingerprint,
		output_preview, model, seed, raw_input, raw_output,
		prompt_tokens, completion_tokens, total_tokens, latency_ms,
		verified, verification_match, created_at
		FROM call_records WHERE 1=1`
	var args []any

	if opts.RunID != "" {
		q += " AND run_id = ?"
		args = append(args, opts.RunID)
	}
	if opts.CallID != "" {
		q += " AND call_id = ?"
		args = append(args, opts.CallID)
	}
	if opts.Label != "" {
		q += " AND label = ?"
		args = append(args, opts.Label)
	}
	if opts.Model != "" {
		q += " AND model = ?"
		args = append(args, opts.Model)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since)
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var records []models.CallRecord
	for rows.Next() {
		var r models.CallRecord
		var match sql.NullBool
		if err := rows.Scan(
			&r.ID, &r.Label, &r.Action,
			&r.InputFingerprint, &r.OutputFingerprint,
			&r.OutputPreview, &r.Model, &r.Seed, &r.RawInput, &r.RawOutput,
			&r.PromptTokens, &r.CompletionTokens, &r.TotalTokens, &r.LatencyMs,
			&r.Verified, &match, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		if match.Valid {
			m := match.Bool
			r.VerificationMatch = &m
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Stats returns call counts and token totals grouped by model and day.
func (a *Archive) Stats(ctx context.Context) ([]models.ArchiveStat, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT model, date(created_at) as day, count(*) as cnt,
			coalesce(sum(total_tokens), 0) as tokens
		 FROM call_records GROUP BY model, day ORDER BY day DESC, model`)
	if err != nil {
		return nil, fmt.Errorf("archive stats: %w", err)
	}
	defer rows.Close()

	var stats []models.ArchiveStat
	for rows.Next() {
		var s models.ArchiveStat
		var day sql.NullString
		if err := rows.Scan(&s.Model, &day, &s.Count, &s.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan archive stat: %w", err)
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes records older than the configured retention period.
func (a *Archive) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -a.cfg.RetentionDays)
	res, err := a.db.ExecContext(ctx,
		`DELETE FROM call_records WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (a *Archive) Close() error {
	close(a.done)
	a.wg.Wait()
	return a.db.Close()
}

func (a *Archive) retentionLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			_, _ = a.Cleanup(context.Background())
		}
	}
}
