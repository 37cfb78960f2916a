package workflow

import (
	"context"

	"scriptreel/internal/logging"
	"scriptreel/internal/queue"
	"scriptreel/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running        bool
	Workers        int
	MergeLane      bool
	LastError      string
	LastGeneration *queue.Generation
	QueueStats     map[queue.Status]int
	StageHealth    []stage.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastGen := m.lastGen
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}

	workers := m.cfg.Workflow.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	summary := StatusSummary{
		Running:     running,
		Workers:     workers,
		MergeLane:   m.merger != nil,
		QueueStats:  stats,
		StageHealth: m.runner.HealthCheck(ctx),
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastGen != nil {
		copy := *lastGen
		summary.LastGeneration = &copy
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastGeneration(g *queue.Generation) {
	m.mu.Lock()
	if g != nil {
		copy := *g
		m.lastGen = &copy
	} else {
		m.lastGen = nil
	}
	m.mu.Unlock()
}
