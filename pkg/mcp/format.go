package mcp

import (
	"fmt"
	"strings"

	"github.com/verascope-ai/verascope/pkg/engine"
	"github.com/verascope-ai/verascope/pkg/models"
)

// formatRecords formats archived call records as a text table.
func formatRecords(records []models.CallRecord) string {
	if len(records) == 0 {
		return "No archived calls found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-14s %-20s %-22s %8s %-8s\n",
		"Call ID", "Label", "Time", "Output FP", "Tokens", "Verified")
	b.WriteString(strings.Repeat("-", 98) + "\n")
	for _, r := range records {
		fmt.Fprintf(&b, "%-20s %-14s %-20s %-22s %8d %-8s\n",
			r.ID, r.Label,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			engine.ShortFingerprint(r.OutputFingerprint),
			r.TotalTokens,
			verifiedMark(r))
	}
	return b.String()
}

func verifiedMark(r models.CallRecord) string {
	if !r.Verified {
		return "-"
	}
	if r.VerificationMatch != nil && *r.VerificationMatch {
		return "match"
	}
	return "MISMATCH"
}

// formatRecordDetail formats a single call record in full.
func formatRecordDetail(r models.CallRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Call %s\n", r.ID)
	fmt.Fprintf(&b, "  Label:       %s\n", r.Label)
	fmt.Fprintf(&b, "  Action:      %s\n", r.Action)
	fmt.Fprintf(&b, "  Time:        %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "  Model:       %s (seed %d)\n", r.Model, r.Seed)
	fmt.Fprintf(&b, "  Input FP:    %s\n", r.InputFingerprint)
	fmt.Fprintf(&b, "  Output FP:   %s\n", r.OutputFingerprint)
	fmt.Fprintf(&b, "  Tokens:      %d prompt, %d completion, %d total\n",
		r.PromptTokens, r.CompletionTokens, r.TotalTokens)
	fmt.Fprintf(&b, "  Latency:     %dms\n", r.LatencyMs)
	fmt.Fprintf(&b, "  Verified:    %s\n", verifiedMark(r))
	if r.OutputPreview != "" {
		fmt.Fprintf(&b, "  Preview:     %s\n", r.OutputPreview)
	}
	return b.String()
}

// formatVerification formats a replay outcome.
func formatVerification(v models.VerificationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Verification of %s: %s\n", v.ID, strings.ToUpper(v.Status))
	fmt.Fprintf(&b, "  Model:       %s (seed %d)\n", v.Model, v.Seed)
	fmt.Fprintf(&b, "  Recorded FP: %s\n", v.OriginalFingerprint)
	fmt.Fprintf(&b, "  Replayed FP: %s\n", v.VerificationFingerprint)
	return b.String()
}

// formatStats formats archive aggregates as a text table.
func formatStats(stats []models.ArchiveStat) string {
	if len(stats) == 0 {
		return "No archived calls found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-25s %-12s %8s %12s\n", "Model", "Day", "Calls", "Tokens")
	b.WriteString(strings.Repeat("-", 60) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-25s %-12s %8d %12d\n", s.Model, s.Day, s.Count, s.TotalTokens)
	}
	return b.String()
}
