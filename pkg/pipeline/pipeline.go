// Package pipeline runs the staged research program on top of the call
// engine: ideation, experiment design, result analysis, and writing. Each
// stage consumes the structured output of the previous one. Malformed model
// output degrades to placeholder values; it never aborts the run.
package pipeline

import (
	"context"

	"github.com/verascope-ai/verascope/pkg/engine"
	"github.com/verascope-ai/verascope/pkg/models"
)

// Milestone names, in execution order.
const (
	MilestoneIdeation = "M1_IDEATION"
	MilestoneDesign   = "M2_DESIGN"
	MilestoneAnalysis = "M3_ANALYSIS"
	MilestoneWriting  = "M4_WRITING"
	MilestoneDone     = "DONE"
)

// Milestones lists the pipeline stages in order.
var Milestones = []string{MilestoneIdeation, MilestoneDesign, MilestoneAnalysis, MilestoneWriting}

// Executor is the call surface the pipeline needs from the engine.
type Executor interface {
	Execute(ctx context.Context, messages []models.ChatMessage, label, action string) (*models.CallRecord, error)
	Params() models.CallParams
}

// Options tune the pipeline stages.
type Options struct {
	// NumHypotheses is how many candidates ideation requests.
	NumHypotheses int
	// NeutralScore stands in for malformed or missing novelty scores.
	NeutralScore float64
}

// DefaultOptions mirror the configuration defaults.
func DefaultOptions() Options {
	return Options{NumHypotheses: 3, NeutralScore: 5}
}

// Scientist drives one research run. It holds no process-wide state; each
// run constructs its own instance around a session engine.
type Scientist struct {
	exec Executor
	opts Options
}

// NewScientist creates a Scientist over the given executor.
func NewScientist(exec Executor, opts Options) *Scientist {
	if opts.NumHypotheses <= 0 {
		opts.NumHypotheses = DefaultOptions().NumHypotheses
	}
	return &Scientist{exec: exec, opts: opts}
}

// Report is the full output of a research run.
type Report struct {
	Program    Program    `json:"program"`
	Milestones Outputs    `json:"milestones"`
	Provenance Provenance `json:"provenance"`
}

// Program identifies the run and its replay parameters.
type Program struct {
	Topic       string `json:"topic"`
	ProgramHash string `json:"program_hash"`
	Model       string `json:"model"`
	Seed        int    `json:"seed"`
}

// Outputs groups the per-milestone results.
type Outputs struct {
	Ideation Ideation `json:"M1_IDEATION"`
	Design   Design   `json:"M2_DESIGN"`
	Analysis Analysis `json:"M3_ANALYSIS"`
	Writing  Writing  `json:"M4_WRITING"`
}

// Ideation holds the generated hypotheses and the selection outcome.
type Ideation struct {
	Hypotheses    []any `json:"hypotheses"`
	NoveltyScores []any `json:"novelty_scores"`
	Selected      any   `json:"selected"`
}

// Design holds the experiment plan and a bounded code preview.
type Design struct {
	Experiment  any    `json:"experiment"`
	CodePreview string `json:"code_preview"`
}

// Analysis holds the (simulated) results and their assessment.
type Analysis struct {
	Results  map[string]any `json:"results"`
	Analysis any            `json:"analysis"`
}

// Writing holds the paper abstract.
type Writing struct {
	Abstract string `json:"abstract"`
}

// Provenance summarizes the audit trail of the run.
type Provenance struct {
	TotalSteps int            `json:"total_steps"`
	Hashes     []StepHash     `json:"all_hashes"`
	Note       string         `json:"verification"`
}

// StepHash is one truncated fingerprint pair in the provenance listing.
type StepHash struct {
	Step       string `json:"step"`
	Action     string `json:"action"`
	InputHash  string `json:"input_hash"`
	OutputHash string `json:"output_hash"`
}

const codePreviewLen = 500

// Run executes the complete research program for a topic. onMilestone, if
// non-nil, is invoked as each stage begins and once with MilestoneDone.
func (s *Scientist) Run(ctx context.Context, topic string, onMilestone func(string)) (*Report, error) {
	notify := func(ms string) {
		if onMilestone != nil {
			onMilestone(ms)
		}
	}

	notify(MilestoneIdeation)
	hypotheses, err := s.GenerateHypotheses(ctx, topic, s.opts.NumHypotheses)
	if err != nil {
		return nil, err
	}

	scores := make([]any, 0, len(hypotheses))
	for _, h := range hypotheses {
		score, err := s.AssessNovelty(ctx, h)
		if err != nil {
			return nil, err
		}
		scores = append(scores, score)
	}

	selected := SelectBest(hypotheses, scores, SelectionPolicy{NeutralScore: s.opts.NeutralScore})

	notify(MilestoneDesign)
	experiment, err := s.DesignExperiment(ctx, selected)
	if err != nil {
		return nil, err
	}
	code, err := s.GenerateCode(ctx, experiment)
	if err != nil {
		return nil, err
	}

	notify(MilestoneAnalysis)
	results := simulatedResults()
	analysis, err := s.AnalyzeResults(ctx, selected, results)
	if err != nil {
		return nil, err
	}

	notify(MilestoneWriting)
	abstract, err := s.WriteAbstract(ctx, selected, results, analysis)
	if err != nil {
		return nil, err
	}

	notify(MilestoneDone)

	params := s.exec.Params()
	report := &Report{
		Program: Program{
			Topic:       topic,
			ProgramHash: engine.Fingerprint(topic),
			Model:       params.Model,
			Seed:        params.Seed,
		},
		Milestones: Outputs{
			Ideation: Ideation{Hypotheses: hypotheses, NoveltyScores: scores, Selected: selected},
			Design:   Design{Experiment: experiment, CodePreview: truncate(code, codePreviewLen)},
			Analysis: Analysis{Results: results, Analysis: analysis},
			Writing:  Writing{Abstract: abstract},
		},
	}
	return report, nil
}

// Provenanced fills the provenance section from the engine's summaries.
func Provenanced(report *Report, summaries []models.CallSummary) {
	p := Provenance{
		TotalSteps: len(summaries),
		Note: "Every step can be independently re-executed against the provider. " +
			"Same input + same seed = same output fingerprint.",
	}
	for _, s := range summaries {
		p.Hashes = append(p.Hashes, StepHash{
			Step:       s.ID,
			Action:     s.Action,
			InputHash:  s.InputFingerprint,
			OutputHash: s.OutputFingerprint,
		})
	}
	report.Provenance = p
}

// simulatedResults stands in for real experiment execution, which is out of
// scope for this service.
func simulatedResults() map[string]any {
	return map[string]any{
		"baseline":         map[string]any{"mean_reward": 145.3, "std": 12.1, "success_rate": 0.72},
		"proposed":         map[string]any{"mean_reward": 178.9, "std": 9.8, "success_rate": 0.84},
		"improvement":      "+23.1% reward, +16.7% success rate",
		"statistical_test": "p < 0.01 (Welch's t-test)",
		"note":             "Simulated results; real execution is out of scope.",
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
