package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/verascope-ai/verascope/pkg/extract"
	"github.com/verascope-ai/verascope/pkg/models"
)

const (
	jsonObjectOnly = "IMPORTANT: Output ONLY the JSON object. " +
		"Do NOT include any reasoning, explanation, or chain-of-thought. " +
		"Start your response with { and end with }."
	jsonArrayOnly = "IMPORTANT: Output ONLY the JSON array. " +
		"Do NOT include any reasoning, explanation, or chain-of-thought. " +
		"Start your response with [ and end with ]."
)

func systemUser(system, user string) []models.ChatMessage {
	return []models.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

// call runs one engine call and returns the normalized output text.
func (s *Scientist) call(ctx context.Context, messages []models.ChatMessage, label, action string) (string, error) {
	rec, err := s.exec.Execute(ctx, messages, label, action)
	if err != nil {
		return "", err
	}
	return rec.RawOutput, nil
}

// GenerateHypotheses asks for n candidate hypotheses. An unparseable answer
// degrades to a single placeholder candidate carrying the raw output.
func (s *Scientist) GenerateHypotheses(ctx context.Context, topic string, n int) ([]any, error) {
	system := "You are an expert AI research scientist. " +
		"Generate novel, testable research hypotheses.\n\n" +
		"For each hypothesis, output a JSON array where each element has:\n" +
		`- "title": concise title` + "\n" +
		`- "description": 2-3 sentence description` + "\n" +
		`- "novelty": why this is novel` + "\n" +
		`- "testable_prediction": specific measurable prediction` + "\n" +
		`- "experiment_sketch": brief experiment design` + "\n" +
		`- "risk": what could go wrong` + "\n\n" + jsonArrayOnly

	raw, err := s.call(ctx, systemUser(system, fmt.Sprintf("Topic: %s\nGenerate %d hypotheses.", topic, n)),
		MilestoneIdeation, "generate_hypotheses")
	if err != nil {
		return nil, err
	}

	v, err := extract.Extract(raw)
	if err != nil {
		return []any{map[string]any{"title": "Generation completed", "raw_output": truncate(raw, 500)}}, nil
	}
	if a, ok := v.Array(); ok {
		return a, nil
	}
	// A single object instead of an array still counts as one candidate.
	return []any{v.Interface()}, nil
}

// AssessNovelty scores one hypothesis on a 1-10 scale. The result is always
// an object with at least a "score" field.
func (s *Scientist) AssessNovelty(ctx context.Context, hypothesis any) (map[string]any, error) {
	system := "You are a research novelty assessor. " +
		"Given a hypothesis, assess novelty on 1-10 scale.\n\n" +
		"Output JSON: " +
		`{"score": int, "reasoning": str, "related_work": [str], "differentiators": [str]}` +
		"\n\n" + jsonObjectOnly

	raw, err := s.call(ctx, systemUser(system, mustJSON(hypothesis)), MilestoneIdeation, "assess_novelty")
	if err != nil {
		return nil, err
	}

	v, err := extract.Extract(raw)
	if err != nil {
		return map[string]any{"score": s.opts.NeutralScore, "reasoning": truncate(raw, 300)}, nil
	}
	first, ok := v.First()
	if !ok {
		return map[string]any{"score": s.opts.NeutralScore}, nil
	}
	if m, isObj := first.Object(); isObj {
		return m, nil
	}
	return map[string]any{"score": s.opts.NeutralScore, "reasoning": truncate(fmt.Sprint(first.Interface()), 300)}, nil
}

// DesignExperiment produces a rigorous experiment plan for a hypothesis.
func (s *Scientist) DesignExperiment(ctx context.Context, hypothesis any) (map[string]any, error) {
	system := "You are an ML experiment designer. " +
		"Design a rigorous experiment to test this hypothesis.\n\n" +
		"Output JSON with:\n" +
		`- "method": description of proposed method` + "\n" +
		`- "baselines": [list of baseline methods]` + "\n" +
		`- "datasets": [datasets/environments]` + "\n" +
		`- "metrics": [evaluation metrics]` + "\n" +
		`- "hyperparameters": key hyperparams` + "\n" +
		`- "ablations": [ablation studies]` + "\n" +
		`- "compute_estimate_gpu_hours": number` + "\n" +
		`- "expected_results": what would confirm/reject hypothesis` + "\n\n" + jsonObjectOnly

	raw, err := s.call(ctx, systemUser(system, mustJSON(hypothesis)), MilestoneDesign, "design_experiment")
	if err != nil {
		return nil, err
	}

	v, err := extract.Extract(raw)
	if err != nil {
		return map[string]any{"method": truncate(raw, 500)}, nil
	}
	first, ok := v.First()
	if ok {
		if m, isObj := first.Object(); isObj {
			return m, nil
		}
	}
	return map[string]any{"method": truncate(fmt.Sprint(v.Interface()), 500)}, nil
}

// GenerateCode produces a runnable experiment script. The output is prose
// code, not JSON, so no extraction is applied.
func (s *Scientist) GenerateCode(ctx context.Context, experiment any) (string, error) {
	system := "You are an expert ML engineer. " +
		"Generate a complete, runnable Python experiment script.\n" +
		"Use PyTorch. Include training loop, evaluation, result logging.\n" +
		"Output results as JSON to stdout.\n" +
		"Keep it self-contained and under 150 lines.\n" +
		"Output ONLY the Python code, no markdown."

	return s.call(ctx, systemUser(system, mustJSON(experiment)), MilestoneDesign, "generate_code")
}

// AnalyzeResults assesses whether the results support the hypothesis.
func (s *Scientist) AnalyzeResults(ctx context.Context, hypothesis any, results map[string]any) (map[string]any, error) {
	system := "You are a rigorous ML researcher analyzing experiment results.\n" +
		"Determine:\n" +
		"- Whether the hypothesis is supported\n" +
		"- Statistical significance\n" +
		"- Key findings\n" +
		"- Limitations\n" +
		"- Follow-up experiments\n\n" +
		"Be honest. If results don't support the hypothesis, say so.\n\n" +
		"Output JSON: " +
		`{"verdict": str, "confidence": float 0-1, "key_findings": [str], "limitations": [str], "follow_ups": [str]}` +
		"\n\n" + jsonObjectOnly

	payload := mustJSON(map[string]any{"hypothesis": hypothesis, "results": results})
	raw, err := s.call(ctx, systemUser(system, payload), MilestoneAnalysis, "analyze_results")
	if err != nil {
		return nil, err
	}

	v, err := extract.Extract(raw)
	if err != nil {
		return map[string]any{"verdict": truncate(raw, 300)}, nil
	}
	first, ok := v.First()
	if ok {
		if m, isObj := first.Object(); isObj {
			return m, nil
		}
	}
	return map[string]any{"verdict": truncate(fmt.Sprint(v.Interface()), 300)}, nil
}

// WriteAbstract produces the paper abstract as plain text.
func (s *Scientist) WriteAbstract(ctx context.Context, hypothesis any, results, analysis map[string]any) (string, error) {
	system := "You are an academic paper writer. " +
		"Write a concise, compelling abstract (under 250 words).\n" +
		"Structure: context -> problem -> method -> results -> impact.\n" +
		"Be specific about numbers and claims."

	payload := mustJSON(map[string]any{
		"hypothesis": hypothesis,
		"results":    results,
		"analysis":   analysis,
	})
	return s.call(ctx, systemUser(system, payload), MilestoneWriting, "write_abstract")
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
