// Package engine wraps every inference call with fingerprinting, audit
// logging, and a replay-based verification protocol.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/verascope-ai/verascope/pkg/models"
	"github.com/verascope-ai/verascope/pkg/normalize"
	"github.com/verascope-ai/verascope/pkg/provider"
)

// ErrNotFound is returned by Verify for an unknown record id.
var ErrNotFound = errors.New("call record not found")

// CallError is surfaced when the provider cannot produce a usable response
// within the retry budget. It is fatal to the pipeline stage that issued
// the call.
type CallError struct {
	Action string
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("inference call failed after %d attempts (%s): %v", maxAttempts, e.Action, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Archiver mirrors successful call records into durable storage.
type Archiver interface {
	Store(ctx context.Context, runID string, rec models.CallRecord) error
}

const (
	maxAttempts  = 2
	retryBackoff = 2 * time.Second
	previewLen   = 300
)

// Engine executes and verifies inference calls for one session. The fixed
// model and seed make every call replayable.
type Engine struct {
	client  provider.Client
	params  models.CallParams
	runID   string
	calls   *Log
	archive Archiver
	counter atomic.Int64
	sleep   func(time.Duration)
}

// New creates an Engine. archive may be nil to disable durable mirroring.
func New(client provider.Client, params models.CallParams, runID string, archive Archiver) *Engine {
	return &Engine{
		client:  client,
		params:  params,
		runID:   runID,
		calls:   NewLog(),
		archive: archive,
		sleep:   time.Sleep,
	}
}

// Params returns the session call parameters.
func (e *Engine) Params() models.CallParams { return e.params }

// RunID returns the session identifier.
func (e *Engine) RunID() string { return e.runID }

// Execute performs one inference call. It fingerprints the canonical input
// before any network activity, retries once on provider failure, normalizes
// the output exactly once, and appends exactly one record on success. The
// returned record's RawOutput is the normalized text handed to the caller.
func (e *Engine) Execute(ctx context.Context, messages []models.ChatMessage, label, action string) (*models.CallRecord, error) {
	id := fmt.Sprintf("%s_%03d", label, e.counter.Add(1))

	canonical, err := CanonicalInput(messages)
	if err != nil {
		return nil, &CallError{Action: action, Err: err}
	}
	inputFP := Fingerprint(canonical)

	req := e.completionRequest(messages)

	start := time.Now()
	comp, err := e.completeWithRetry(ctx, req)
	if err != nil {
		return nil, &CallError{Action: action, Err: err}
	}
	latency := time.Since(start).Milliseconds()

	output := normalize.Normalize(comp.Text)
	outputFP := Fingerprint(output)

	rec := models.CallRecord{
		ID:                id,
		CreatedAt:         time.Now().UTC(),
		Label:             label,
		Action:            action,
		InputFingerprint:  inputFP,
		OutputFingerprint: outputFP,
		OutputPreview:     truncate(output, previewLen),
		Model:             e.params.Model,
		Seed:              e.params.Seed,
		RawInput:          canonical,
		RawOutput:         output,
		LatencyMs:         latency,
	}
	if comp.Usage != nil {
		rec.PromptTokens = comp.Usage.PromptTokens
		rec.CompletionTokens = comp.Usage.CompletionTokens
		rec.TotalTokens = comp.Usage.TotalTokens
	}

	e.calls.Append(rec)

	if e.archive != nil {
		if err := e.archive.Store(ctx, e.runID, rec); err != nil {
			log.Printf("archive store error for %s: %v", id, err)
		}
	}

	return &rec, nil
}

// completeWithRetry issues the provider call with the bounded retry budget:
// two attempts total with a fixed backoff between them.
func (e *Engine) completeWithRetry(ctx context.Context, req models.ChatCompletionRequest) (*provider.Completion, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			e.sleep(retryBackoff)
		}
		comp, err := e.client.Complete(ctx, req)
		if err == nil {
			return comp, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Verify replays a recorded call against the provider and compares the
// normalized output fingerprints. The provider call is not retried here: a
// transient failure must surface as an error, not as a non-reproducible
// output. A fingerprint mismatch is a valid result, not an error.
func (e *Engine) Verify(ctx context.Context, id string) (*models.VerificationResult, error) {
	rec, ok := e.calls.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	result, err := Replay(ctx, e.client, rec, e.params.Temperature, e.params.MaxTokens)
	if err != nil {
		return nil, err
	}

	e.calls.UpdateVerification(id, result.Match)
	return result, nil
}

// Replay re-issues a recorded call against the provider and compares the
// normalized output fingerprints. It works on any CallRecord, including one
// loaded from the archive, so audits can re-execute steps out of process.
// The request uses the record's stored model and seed; temperature and
// maxTokens must match the originating session's fixed parameters.
func Replay(ctx context.Context, client provider.Client, rec models.CallRecord, temperature float64, maxTokens int) (*models.VerificationResult, error) {
	var messages []models.ChatMessage
	if err := json.Unmarshal([]byte(rec.RawInput), &messages); err != nil {
		return nil, fmt.Errorf("decode recorded input for %s: %w", rec.ID, err)
	}

	seed := rec.Seed
	req := models.ChatCompletionRequest{
		Model:       rec.Model,
		Messages:    messages,
		Seed:        &seed,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}

	comp, err := client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("replay call for %s: %w", rec.ID, err)
	}

	// The identical normalization applied at creation time. Hashing the raw
	// replay output here would report spurious mismatches whenever the
	// reasoning-block noise differs between runs.
	output := normalize.Normalize(comp.Text)
	newFP := Fingerprint(output)
	match := newFP == rec.OutputFingerprint

	status := "mismatch"
	if match {
		status = "verified"
	}
	return &models.VerificationResult{
		ID:                      rec.ID,
		OriginalFingerprint:     rec.OutputFingerprint,
		VerificationFingerprint: newFP,
		Match:                   match,
		Model:                   rec.Model,
		Seed:                    rec.Seed,
		InputFingerprint:        rec.InputFingerprint,
		Status:                  status,
	}, nil
}

// Record returns a copy of the record with the given id.
func (e *Engine) Record(id string) (models.CallRecord, bool) {
	return e.calls.Get(id)
}

// ListRecords returns bounded summaries of all calls in creation order.
func (e *Engine) ListRecords() []models.CallSummary {
	return e.calls.Summaries()
}

// ExportFull returns complete copies of every record for offline audit.
func (e *Engine) ExportFull() []models.CallRecord {
	return e.calls.Export()
}

// CallCount returns the number of recorded calls.
func (e *Engine) CallCount() int {
	return e.calls.Len()
}

func (e *Engine) completionRequest(messages []models.ChatMessage) models.ChatCompletionRequest {
	seed := e.params.Seed
	temp := e.params.Temperature
	maxTok := e.params.MaxTokens
	return models.ChatCompletionRequest{
		Model:       e.params.Model,
		Messages:    messages,
		Seed:        &seed,
		Temperature: &temp,
		MaxTokens:   &maxTok,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
