package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/verascope-ai/verascope/pkg/models"
	"github.com/verascope-ai/verascope/pkg/normalize"
	"github.com/verascope-ai/verascope/pkg/provider"
)

// fakeClient returns scripted responses in order, then repeats the last one.
type fakeClient struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     int
	lastReq   models.ChatCompletionRequest
}

type fakeResponse struct {
	text string
	err  error
}

func (f *fakeClient) Complete(ctx context.Context, req models.ChatCompletionRequest) (*provider.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	r := f.responses[idx]
	if r.err != nil {
		return nil, r.err
	}
	return &provider.Completion{Text: r.text, Raw: []byte(r.text)}, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testParams() models.CallParams {
	return models.CallParams{Model: "test-model", Seed: 42, Temperature: 0, MaxTokens: 4096}
}

func newTestEngine(client provider.Client) *Engine {
	e := New(client, testParams(), "run-1", nil)
	e.sleep = func(time.Duration) {} // no real backoff in tests
	return e
}

func userMessage(content string) []models.ChatMessage {
	return []models.ChatMessage{{Role: "user", Content: content}}
}

func TestExecuteRecordsCall(t *testing.T) {
	raw := "<|channel|>analysis<|message|>thinking...<|end|> {\"ok\": true}"
	client := &fakeClient{responses: []fakeResponse{{text: raw}}}
	e := newTestEngine(client)

	rec, err := e.Execute(context.Background(), userMessage("ping"), "M1_IDEATION", "generate_hypotheses")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if rec.ID != "M1_IDEATION_001" {
		t.Errorf("unexpected id %q", rec.ID)
	}
	if rec.RawOutput != `{"ok": true}` {
		t.Errorf("output not normalized: %q", rec.RawOutput)
	}
	if rec.OutputFingerprint != Fingerprint(`{"ok": true}`) {
		t.Error("output fingerprint not computed over normalized text")
	}
	if rec.InputFingerprint != Fingerprint(rec.RawInput) {
		t.Error("input fingerprint does not match stored canonical input")
	}
	if e.CallCount() != 1 {
		t.Errorf("expected 1 log entry, got %d", e.CallCount())
	}
}

func TestExecuteRetrySucceedsOnSecondAttempt(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{err: &provider.Error{Status: 500, Body: "transient"}},
		{text: "recovered"},
	}}
	e := newTestEngine(client)

	var slept []time.Duration
	e.sleep = func(d time.Duration) { slept = append(slept, d) }

	rec, err := e.Execute(context.Background(), userMessage("ping"), "M1", "a")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rec.RawOutput != "recovered" {
		t.Errorf("unexpected output %q", rec.RawOutput)
	}
	if client.callCount() != 2 {
		t.Errorf("expected 2 provider attempts, got %d", client.callCount())
	}
	if len(slept) != 1 || slept[0] != retryBackoff {
		t.Errorf("expected one fixed backoff, got %v", slept)
	}
	if e.CallCount() != 1 {
		t.Errorf("retry must produce exactly one log entry, got %d", e.CallCount())
	}
}

func TestExecuteRetryExhausted(t *testing.T) {
	provErr := &provider.Error{Status: 503, Body: "down"}
	client := &fakeClient{responses: []fakeResponse{{err: provErr}}}
	e := newTestEngine(client)

	_, err := e.Execute(context.Background(), userMessage("ping"), "M1", "design")
	var ce *CallError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CallError, got %v", err)
	}
	if ce.Action != "design" {
		t.Errorf("CallError action = %q", ce.Action)
	}
	if !errors.Is(err, provErr) {
		t.Error("CallError should wrap the last provider error")
	}
	if client.callCount() != maxAttempts {
		t.Errorf("expected %d attempts, got %d", maxAttempts, client.callCount())
	}
	if e.CallCount() != 0 {
		t.Errorf("failed call must not be logged, got %d entries", e.CallCount())
	}
}

func TestExecuteIDMonotonicity(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{{text: "out"}}}
	e := newTestEngine(client)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		rec, err := e.Execute(context.Background(), userMessage(fmt.Sprintf("m%d", i)), "M1", "a")
		if err != nil {
			t.Fatalf("Execute %d: %v", i, err)
		}
		if seen[rec.ID] {
			t.Fatalf("duplicate id %s", rec.ID)
		}
		seen[rec.ID] = true
	}

	recs := e.ExportFull()
	for i := 1; i < len(recs); i++ {
		if recs[i-1].ID >= recs[i].ID {
			t.Errorf("ids out of order: %s then %s", recs[i-1].ID, recs[i].ID)
		}
	}
}

func TestInputFingerprintStableAcrossKeyOrder(t *testing.T) {
	// Field order in the source struct is fixed, but the canonical form
	// must be deterministic for the same logical conversation.
	a, err := CanonicalInput(userMessage("ping"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := CanonicalInput(userMessage("ping"))
	if err != nil {
		t.Fatal(err)
	}
	if a != b || Fingerprint(a) != Fingerprint(b) {
		t.Error("canonical input not stable")
	}
	c, _ := CanonicalInput(userMessage("pong"))
	if Fingerprint(a) == Fingerprint(c) {
		t.Error("different conversations must not collide")
	}
}

func TestVerifyMatch(t *testing.T) {
	raw := "<|channel|>analysis<|message|>first-run reasoning<|end|>result body"
	client := &fakeClient{responses: []fakeResponse{{text: raw}}}
	e := newTestEngine(client)

	rec, err := e.Execute(context.Background(), userMessage("ping"), "M1", "a")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// Replay returns different reasoning noise but identical content.
	client.mu.Lock()
	client.responses = []fakeResponse{{text: "<|channel|>analysis<|message|>other noise<|end|>result body"}}
	client.calls = 0
	client.mu.Unlock()

	res, err := e.Verify(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Match {
		t.Error("expected match despite differing reasoning noise")
	}
	if res.Status != "verified" {
		t.Errorf("unexpected status %q", res.Status)
	}
	if res.OriginalFingerprint != rec.OutputFingerprint {
		t.Error("result should carry the original fingerprint")
	}

	updated, _ := e.Record(rec.ID)
	if !updated.Verified || updated.VerificationMatch == nil || !*updated.VerificationMatch {
		t.Errorf("record not updated: %+v", updated)
	}
}

func TestVerifyMismatch(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{{text: "original output"}}}
	e := newTestEngine(client)

	rec, _ := e.Execute(context.Background(), userMessage("ping"), "M1", "a")

	client.mu.Lock()
	client.responses = []fakeResponse{{text: "different output"}}
	client.mu.Unlock()

	res, err := e.Verify(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Verify: a mismatch is a result, not an error: %v", err)
	}
	if res.Match {
		t.Error("expected mismatch")
	}
	if res.Status != "mismatch" {
		t.Errorf("unexpected status %q", res.Status)
	}

	updated, _ := e.Record(rec.ID)
	if updated.VerificationMatch == nil || *updated.VerificationMatch {
		t.Error("record should carry match=false")
	}
}

func TestVerifyLastWriteWins(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{{text: "stable"}}}
	e := newTestEngine(client)

	rec, _ := e.Execute(context.Background(), userMessage("ping"), "M1", "a")

	client.mu.Lock()
	client.responses = []fakeResponse{{text: "drifted"}}
	client.mu.Unlock()
	if res, err := e.Verify(context.Background(), rec.ID); err != nil || res.Match {
		t.Fatalf("first verify: res=%+v err=%v", res, err)
	}

	client.mu.Lock()
	client.responses = []fakeResponse{{text: "stable"}}
	client.mu.Unlock()
	if res, err := e.Verify(context.Background(), rec.ID); err != nil || !res.Match {
		t.Fatalf("second verify: res=%+v err=%v", res, err)
	}

	updated, _ := e.Record(rec.ID)
	if updated.VerificationMatch == nil || !*updated.VerificationMatch {
		t.Error("latest verification outcome should win")
	}
}

func TestVerifyNotFound(t *testing.T) {
	e := newTestEngine(&fakeClient{responses: []fakeResponse{{text: "x"}}})
	_, err := e.Verify(context.Background(), "missing_001")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVerifyProviderErrorIsTerminal(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{{text: "out"}}}
	e := newTestEngine(client)
	rec, _ := e.Execute(context.Background(), userMessage("ping"), "M1", "a")

	client.mu.Lock()
	client.responses = []fakeResponse{{err: &provider.Error{Status: 500, Body: "down"}}}
	client.calls = 0
	client.mu.Unlock()

	_, err := e.Verify(context.Background(), rec.ID)
	if err == nil {
		t.Fatal("expected error for provider failure during verify")
	}
	if client.callCount() != 1 {
		t.Errorf("verify must not retry, got %d attempts", client.callCount())
	}
}

func TestVerifyUsesRecordedModelAndSeed(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{{text: "out"}}}
	e := newTestEngine(client)
	rec, _ := e.Execute(context.Background(), userMessage("ping"), "M1", "a")

	if _, err := e.Verify(context.Background(), rec.ID); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	client.mu.Lock()
	req := client.lastReq
	client.mu.Unlock()
	if req.Model != rec.Model {
		t.Errorf("replay model %q != recorded %q", req.Model, rec.Model)
	}
	if req.Seed == nil || *req.Seed != rec.Seed {
		t.Errorf("replay seed %v != recorded %d", req.Seed, rec.Seed)
	}
}

func TestListRecordsBounded(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'y'
	}
	client := &fakeClient{responses: []fakeResponse{{text: string(long)}}}
	e := newTestEngine(client)
	if _, err := e.Execute(context.Background(), userMessage("ping"), "M1", "a"); err != nil {
		t.Fatal(err)
	}

	sums := e.ListRecords()
	if len(sums) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(sums))
	}
	s := sums[0]
	if len(s.OutputPreview) > previewLen {
		t.Errorf("preview not bounded: %d", len(s.OutputPreview))
	}
	if len(s.InputFingerprint) > 19 || len(s.OutputFingerprint) > 19 {
		t.Error("summary fingerprints should be truncated")
	}
}

func TestConcurrentVerifyDuringExecute(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{{text: "out"}}}
	e := newTestEngine(client)

	first, err := e.Execute(context.Background(), userMessage("seed"), "M1", "a")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, _ = e.Execute(context.Background(), userMessage(fmt.Sprintf("m%d", i)), "M2", "b")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := e.Verify(context.Background(), first.ID); err != nil {
				t.Errorf("Verify: %v", err)
				return
			}
			_ = e.ListRecords()
		}
	}()
	wg.Wait()

	if e.CallCount() != 51 {
		t.Errorf("expected 51 records, got %d", e.CallCount())
	}
}

func TestFingerprintDeterminism(t *testing.T) {
	text := normalize.Normalize("<|start|>assistant<|message|>same text")
	if Fingerprint(text) != Fingerprint(text) {
		t.Error("fingerprint not pure")
	}
	// Known digest of "ping" keeps the function stable across processes.
	const want = "758d61f26a44448384e5c4468a0dcb7a2abe456067b0f7b505bc28b9411fe931"
	if got := Fingerprint("ping"); got != want {
		t.Errorf("Fingerprint(\"ping\") = %s, want %s", got, want)
	}
}
