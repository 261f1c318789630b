package models

import "time"

// CallRecord is one entry in the verifiable call log. Fingerprints are
// SHA-256 hex digests; OutputFingerprint is always computed over the
// normalized output, never the raw provider text.
type CallRecord struct {
	ID                string    `json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	Label             string    `json:"label"`
	Action            string    `json:"action"`
	InputFingerprint  string    `json:"input_fingerprint"`
	OutputFingerprint string    `json:"output_fingerprint"`
	OutputPreview     string    `json:"output_preview"`
	Model             string    `json:"model"`
	Seed              int       `json:"seed"`
	RawInput          string    `json:"raw_input"`
	RawOutput         string    `json:"raw_output"`
	PromptTokens      int       `json:"prompt_tokens"`
	CompletionTokens  int       `json:"completion_tokens"`
	TotalTokens       int       `json:"total_tokens"`
	LatencyMs         int64     `json:"latency_ms"`
	Verified          bool      `json:"verified"`
	VerificationMatch *bool     `json:"verification_match"`
}

// CallSummary is the listing view of a CallRecord. It carries truncated
// fingerprints and a bounded preview, never the raw payloads.
type CallSummary struct {
	ID                string    `json:"id"`
	Label             string    `json:"label"`
	Action            string    `json:"action"`
	InputFingerprint  string    `json:"input_fingerprint"`
	OutputFingerprint string    `json:"output_fingerprint"`
	OutputPreview     string    `json:"output_preview"`
	CreatedAt         time.Time `json:"created_at"`
	Verified          bool      `json:"verified"`
	VerificationMatch *bool     `json:"verification_match"`
}

// VerificationResult is the outcome of replaying a recorded call.
type VerificationResult struct {
	ID                      string `json:"id"`
	OriginalFingerprint     string `json:"original_fingerprint"`
	VerificationFingerprint string `json:"verification_fingerprint"`
	Match                   bool   `json:"match"`
	Model                   string `json:"model"`
	Seed                    int    `json:"seed"`
	InputFingerprint        string `json:"input_fingerprint"`
	Status                  string `json:"status"`
}

// CallParams are the provider parameters fixed for a session.
type CallParams struct {
	Model       string  `yaml:"model" json:"model"`
	Seed        int     `yaml:"seed" json:"seed"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
}

// ArchiveConfig controls the persistent call archive.
type ArchiveConfig struct {
	Enabled       bool     `yaml:"enabled"`
	DBPath        string   `yaml:"db_path"`
	RetentionDays int      `yaml:"retention_days"`
	Include       []string `yaml:"include"`       // "inputs", "outputs"
	MaxBodySize   int      `yaml:"max_body_size"` // bytes
}

// ArchiveQueryOpts specifies filters for querying archived call records.
type ArchiveQueryOpts struct {
	RunID  string
	CallID string
	Label  string
	Model  string
	Since  time.Time
	Limit  int
}

// ArchiveStat holds aggregate archive counts for a model/day combination.
type ArchiveStat struct {
	Model       string
	Day         string
	Count       int
	TotalTokens int64
}
