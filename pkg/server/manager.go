package server

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/verascope-ai/verascope/pkg/engine"
	"github.com/verascope-ai/verascope/pkg/models"
	"github.com/verascope-ai/verascope/pkg/pipeline"
	"github.com/verascope-ai/verascope/pkg/provider"
)

// ErrRunInProgress is returned by Start while a pipeline is executing.
var ErrRunInProgress = errors.New("a research run is already in progress")

// Run states.
const (
	StateIdle     = "idle"
	StateRunning  = "running"
	StateComplete = "complete"
	StateError    = "error"
)

// RunManager owns the state of the current research run. It replaces
// module-level globals with one mutex-protected session object; the engine
// stays reachable after a run completes so verification can continue.
type RunManager struct {
	client   provider.Client
	archive  engine.Archiver
	pipeOpts pipeline.Options

	mu        sync.Mutex
	status    string
	errMsg    string
	current   string
	completed []string
	topic     string
	eng       *engine.Engine
	report    *pipeline.Report
}

// NewRunManager creates an idle manager.
func NewRunManager(client provider.Client, archive engine.Archiver, opts pipeline.Options) *RunManager {
	return &RunManager{
		client:   client,
		archive:  archive,
		pipeOpts: opts,
		status:   StateIdle,
	}
}

// StatusSnapshot is a consistent view of the run state.
type StatusSnapshot struct {
	Status              string               `json:"status"`
	CurrentMilestone    string               `json:"current_milestone"`
	CompletedMilestones []string             `json:"completed_milestones"`
	Error               string               `json:"error,omitempty"`
	StepsCompleted      int                  `json:"steps_completed"`
	AuditLog            []models.CallSummary `json:"audit_log"`
}

// Start launches a pipeline run in the background. It fails with
// ErrRunInProgress while a previous run is still executing.
func (m *RunManager) Start(ctx context.Context, topic string, params models.CallParams) (runID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == StateRunning {
		return "", ErrRunInProgress
	}

	runID = uuid.NewString()
	eng := engine.New(m.client, params, runID, m.archive)
	sci := pipeline.NewScientist(eng, m.pipeOpts)

	m.status = StateRunning
	m.errMsg = ""
	m.current = "STARTING"
	m.completed = nil
	m.topic = topic
	m.eng = eng
	m.report = nil

	go m.run(ctx, sci, eng, topic)
	return runID, nil
}

func (m *RunManager) run(ctx context.Context, sci *pipeline.Scientist, eng *engine.Engine, topic string) {
	report, err := sci.Run(ctx, topic, m.onMilestone)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		log.Printf("pipeline run failed: %v", err)
		m.status = StateError
		m.errMsg = err.Error()
		m.current = "ERROR"
		return
	}
	pipeline.Provenanced(report, eng.ListRecords())
	m.report = report
	m.status = StateComplete
}

// onMilestone folds the previous milestone into the completed list as the
// next one begins.
func (m *RunManager) onMilestone(ms string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != "" && m.current != "STARTING" && m.current != pipeline.MilestoneDone && m.current != "ERROR" {
		if !slices.Contains(m.completed, m.current) {
			m.completed = append(m.completed, m.current)
		}
	}
	m.current = ms
	if ms == pipeline.MilestoneDone {
		for _, stage := range pipeline.Milestones {
			if !slices.Contains(m.completed, stage) {
				m.completed = append(m.completed, stage)
			}
		}
	}
}

// Status returns a consistent snapshot of the run state and call summaries.
func (m *RunManager) Status() StatusSnapshot {
	m.mu.Lock()
	eng := m.eng
	snap := StatusSnapshot{
		Status:              m.status,
		CurrentMilestone:    m.current,
		CompletedMilestones: slices.Clone(m.completed),
	}
	if m.status == StateError {
		snap.Error = m.errMsg
	}
	m.mu.Unlock()

	if eng != nil {
		snap.AuditLog = eng.ListRecords()
		snap.StepsCompleted = len(snap.AuditLog)
	}
	return snap
}

// Report returns the completed run report, or false when none exists yet.
func (m *RunManager) Report() (*pipeline.Report, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.report == nil {
		return nil, false
	}
	return m.report, true
}

// Engine returns the engine of the current or most recent run.
func (m *RunManager) Engine() (*engine.Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.eng == nil {
		return nil, false
	}
	return m.eng, true
}
