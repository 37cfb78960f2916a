package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"scriptreel/internal/config"
	"scriptreel/internal/logging"
	"scriptreel/internal/merge"
	"scriptreel/internal/notifications"
	"scriptreel/internal/progress"
	"scriptreel/internal/queue"
	"scriptreel/internal/stage"
	"scriptreel/internal/telemetry"
)

const eventBuffer = 256

// Options wire a Manager to its collaborators.
type Options struct {
	Config     *config.Config
	Store      *queue.Store
	Generators []stage.Generator
	// Merger renders video_completed generations. Without it generations
	// stop at video_completed.
	Merger   *merge.Orchestrator
	Hub      *progress.Hub
	Notifier notifications.Service
	Logger   *slog.Logger
	Metrics  *telemetry.Instruments
	// Clock overrides time.Now for stage timeouts and leases.
	Clock func() time.Time
}

// Manager runs the asset worker pool, the barrier scheduler, the merge lane
// and the stale sweeps for every generation in the store.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	machine      *Machine
	runner       *stage.Runner
	merger       *merge.Orchestrator
	mergeOpts    merge.Options
	hub          *progress.Hub
	notifier     notifications.Service
	logger       *slog.Logger
	metrics      *telemetry.Instruments
	heartbeat    *HeartbeatMonitor
	now          func() time.Time
	instance     string
	pollInterval time.Duration
	stageTimeout time.Duration

	events    chan string
	mergeWake chan struct{}

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	lastErr error
	lastGen *queue.Generation

	queueActive bool
	queueStart  time.Time
}

// NewManager constructs a workflow manager and its stage runner.
func NewManager(opts Options) (*Manager, error) {
	if opts.Config == nil {
		return nil, errors.New("workflow: config is required")
	}
	if opts.Store == nil {
		return nil, errors.New("workflow: store is required")
	}
	cfg := opts.Config
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	hub := opts.Hub
	if hub == nil {
		hub = progress.NewHub(logger, progress.WithRecorder(opts.Store))
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	m := &Manager{
		cfg:          cfg,
		store:        opts.Store,
		machine:      NewMachine(opts.Store, logger, opts.Metrics, cfg.Workflow.PipelineRetryLimit),
		merger:       opts.Merger,
		mergeOpts:    merge.OptionsFromConfig(cfg.Merge),
		hub:          hub,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(logger, "workflow-manager"),
		metrics:      opts.Metrics,
		now:          now,
		instance:     uuid.NewString()[:8],
		pollInterval: cfg.PollInterval(),
		stageTimeout: cfg.StageTimeout(),
		events:       make(chan string, eventBuffer),
		mergeWake:    make(chan struct{}, 1),
	}
	if m.pollInterval <= 0 {
		m.pollInterval = 500 * time.Millisecond
	}
	m.heartbeat = NewHeartbeatMonitor(opts.Store, logger, cfg.HeartbeatInterval(), cfg.LeaseDuration(), cfg.StaleAfter(), now)

	runner, err := stage.NewRunner(stage.Options{
		Store:      opts.Store,
		Generators: opts.Generators,
		Logger:     logger,
		Metrics:    opts.Metrics,
		Backoff:    stage.Backoff{Initial: cfg.BackoffInitial(), Max: cfg.BackoffMax()},
		MaxRetries: cfg.Generation.MaxRetries,
		Lease:      cfg.LeaseDuration(),
		Clock:      now,
		Notify:     m.Signal,
	})
	if err != nil {
		return nil, err
	}
	m.runner = runner
	return m, nil
}

// Machine returns the state machine the manager drives.
func (m *Manager) Machine() *Machine {
	return m.machine
}

// Hub returns the progress hub updates are published through.
func (m *Manager) Hub() *progress.Hub {
	return m.hub
}

// Signal asks the scheduler to re-evaluate a generation. It never blocks; a
// full queue is drained by the next poll tick.
func (m *Manager) Signal(generationID string) {
	select {
	case m.events <- generationID:
	default:
	}
}

func (m *Manager) wakeMerge() {
	select {
	case m.mergeWake <- struct{}{}:
	default:
	}
}

// Start launches the workers, scheduler, merge lane and sweeper.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if len(m.runner.Kinds()) == 0 {
		return errors.New("workflow generators not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	workers := m.cfg.Workflow.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	for i := range workers {
		name := workerName(m.instance, i)
		group.Go(func() error { return m.runWorker(groupCtx, name) })
	}
	group.Go(func() error { return m.runScheduler(groupCtx) })
	group.Go(func() error { return m.runSweeper(groupCtx) })
	if m.merger != nil {
		group.Go(func() error { return m.runMergeLane(groupCtx) })
	}

	m.cancel = cancel
	m.group = group
	m.running = true
	m.logger.Info("workflow started",
		logging.Int("workers", workers),
		logging.Bool("merge_lane", m.merger != nil),
		logging.String(logging.FieldEventType, "workflow_started"),
	)
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, group := m.cancel, m.group
	m.running = false
	m.cancel, m.group = nil, nil
	m.mu.Unlock()

	cancel()
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("workflow stopped with error", logging.Error(err))
	}
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stopped"))
}

// Cancel cancels a generation and closes its progress stream.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	if err := m.machine.Cancel(ctx, id); err != nil {
		return err
	}
	g, err := m.store.GetGeneration(ctx, id)
	if err != nil || g == nil {
		m.hub.Finish(ctx, id, string(queue.StatusCancelled), "cancelled")
		return err
	}
	m.onFinished(ctx, g, "cancelled", "")
	return nil
}
