// Package runservice wraps the CTMC kernel into an async run-management
// service: it drives the same signature → mixture → reactor → simulator
// pipeline the CLI runs inline, but as a goroutine tracked by ID so the HTTP
// and gRPC interfaces can start, stop, and query a run without blocking the
// request that started it.
package runservice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sitesim/reactor/internal/domain/alarm"
	"github.com/sitesim/reactor/internal/domain/mixture"
	"github.com/sitesim/reactor/internal/domain/molecule"
	"github.com/sitesim/reactor/internal/domain/monitor"
	"github.com/sitesim/reactor/internal/domain/reactor"
	"github.com/sitesim/reactor/internal/domain/signature"
	"github.com/sitesim/reactor/internal/domain/simulator"
	"github.com/sitesim/reactor/internal/infrastructure/database/postgres/repositories"
	"github.com/sitesim/reactor/internal/infrastructure/database/redis"
	"github.com/sitesim/reactor/internal/infrastructure/messaging/kafka"
	"github.com/sitesim/reactor/internal/infrastructure/monitoring/logging"
	"github.com/sitesim/reactor/pkg/errors"
	"github.com/sitesim/reactor/pkg/types/chem"
	"github.com/sitesim/reactor/pkg/types/common"
)

// Publisher is the subset of kafka.Producer a Manager needs, narrowed to an
// interface so tests can substitute a recording fake.
type Publisher interface {
	Publish(ctx context.Context, msg *common.ProducerMessage) error
}

// StartRunRequest carries the inputs needed to start one run.
type StartRunRequest struct {
	SignatureText string
	Parameters    signature.Parameters
	Seed          uint64
	SimLimit      float64
	SimLimitKind  string // "time" | "event"

	// InflowRate/OutflowRate apply a continuous per-atom-type creation/removal
	// rate to the mixture, the steady-state counterpart to a purely
	// reaction-driven run. Both may be nil.
	InflowRate  map[chem.AgentType]float64
	OutflowRate map[chem.AgentType]float64
}

// Status values a run can be in.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusStopped   = "stopped"
)

// RunState is the point-in-time snapshot of a tracked run returned by
// GetRun: current status, kernel clock, and event count.
type RunState struct {
	ID         string
	Status     string
	EventCount uint64
	SimTime    float64
	StartedAt  time.Time
	FinishedAt *time.Time
	Err        string
}

// run is the manager's internal bookkeeping for one in-flight or finished
// run: the live kernel handles plus a cancel func to honor StopRun.
type run struct {
	mu     sync.Mutex
	state  RunState
	cancel context.CancelFunc
	mon    *monitor.Monitor
}

// Manager tracks every run started through it, driving each to completion
// on its own goroutine. repo, publisher, cache, and locks are all optional:
// a nil repo skips durable persistence, a nil publisher skips event
// emission, a nil cache skips the cross-instance state cache, and a nil
// locks factory skips distributed finalization locking, so a Manager is
// equally usable in tests and in a fully wired deployment.
type Manager struct {
	repo      *repositories.RunRepo
	publisher Publisher
	cache     redis.Cache
	locks     redis.LockFactory
	logger    logging.Logger

	mu   sync.RWMutex
	runs map[string]*run
}

// finalizeLockTTL bounds how long a finalization lock may be held before it
// expires on its own, so a crashed holder can never wedge a run's finish
// permanently.
const finalizeLockTTL = 10 * time.Second

// cachedStateTTL is how long a finished run's state survives in the cache,
// long enough for a dashboard polling GetRun right after completion to still
// see it without needing the owning Manager instance to still be up.
const cachedStateTTL = 10 * time.Minute

// NewManager builds a Manager. repo, publisher, cache, and locks may all be
// nil.
func NewManager(repo *repositories.RunRepo, publisher Publisher, cache redis.Cache, locks redis.LockFactory, logger logging.Logger) *Manager {
	return &Manager{
		repo:      repo,
		publisher: publisher,
		cache:     cache,
		locks:     locks,
		logger:    logger,
		runs:      make(map[string]*run),
	}
}

// StartRun parses req's signature text, seeds an initial mixture, and
// launches the CTMC loop on a new goroutine, returning immediately with the
// run's ID. The run continues until it reaches SimLimit, fires an alarm
// condition, or StopRun cancels it.
func (m *Manager) StartRun(ctx context.Context, req StartRunRequest) (string, error) {
	sig, err := signature.ParseString(req.SignatureText)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInvalidParam, "parsing signature")
	}

	id := uuid.New().String()
	seed2 := req.Seed ^ 0x9e3779b97f4a7c15

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		state: RunState{
			ID:        id,
			Status:    StatusRunning,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
		mon:    monitor.New(0),
	}

	m.mu.Lock()
	m.runs[id] = r
	m.mu.Unlock()

	if m.repo != nil {
		dbRun := &repositories.Run{
			ID:           id,
			Seed1:        req.Seed,
			Seed2:        seed2,
			SimLimit:     req.SimLimit,
			SimLimitKind: req.SimLimitKind,
		}
		if err := m.repo.CreateRun(ctx, dbRun); err != nil {
			m.logger.Warn("failed to persist run start", logging.String("run_id", id), logging.Err(err))
		}
	}
	m.publishRunStarted(ctx, id, req, seed2)

	go m.drive(runCtx, id, r, sig, req)

	return id, nil
}

func (m *Manager) drive(ctx context.Context, id string, r *run, sig *signature.Signature, req StartRunRequest) {
	kin := sig.DeriveKinetics(req.Parameters)
	mctx := molecule.ReactivityContext{Kinetics: kin, Canonicalizer: molecule.NewDefaultCanonicalizer()}

	mx := mixture.New(sig, mctx, req.InflowRate, req.OutflowRate)
	mixture.SeedFromSignature(mx, sig, mctx)

	rx := reactor.New(sig, mctx)
	sim := simulator.New(sig, mx, rx, req.Seed, req.Seed^0x9e3779b97f4a7c15)

	for i, sp := range mx.Species() {
		_ = r.mon.Register(monitor.Observable{
			Name:      fmt.Sprintf("species_%d", i),
			Kind:      monitor.KindMoleculeCount,
			Canonical: sp.Canonical(),
		})
	}
	al := alarm.New()

	limit := req.SimLimit
	if limit <= 0 {
		limit = 1000
	}
	byEvent := req.SimLimitKind == "event"

	status := StatusCompleted

	for {
		select {
		case <-ctx.Done():
			status = StatusStopped
			goto finished
		default:
		}

		if byEvent {
			if float64(sim.EventCount()) >= limit {
				goto finished
			}
		} else if sim.SimTime() >= limit {
			goto finished
		}

		if err := sim.Step(); err != nil {
			status = StatusCompleted
			goto finished
		}
		r.mon.Sample(mx, sim.SimTime())
		if fired, name := al.Trigger(r.mon); fired {
			m.publishAlarm(ctx, id, name, sim.SimTime())
			status = StatusCompleted
			goto finished
		}
	}

finished:
	m.finalize(ctx, id, r, status, sim.EventCount(), sim.SimTime())
}

// finalize records a run's terminal state: it updates the in-memory state,
// persists to Postgres, caches the terminal state for cross-instance
// GetRun polling, and publishes the finish event. When a LockFactory is
// configured, the persist/cache step runs under a per-run mutex, so two
// instances finalizing the same run ID do so one at a time. If the lock
// cannot be acquired, the failure is logged and finalize proceeds without it.
func (m *Manager) finalize(ctx context.Context, id string, r *run, status string, eventCount uint64, simTime float64) {
	if m.locks != nil {
		lock := m.locks.NewMutex(id, redis.WithLockTTL(finalizeLockTTL))
		if err := lock.Lock(ctx); err != nil {
			m.logger.Warn("failed to acquire finalize lock", logging.String("run_id", id), logging.Err(err))
		} else {
			defer lock.Unlock(ctx)
		}
	}

	r.mu.Lock()
	now := time.Now().UTC()
	r.state.Status = status
	r.state.EventCount = eventCount
	r.state.SimTime = simTime
	r.state.FinishedAt = &now
	finalState := r.state
	r.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.FinishRun(ctx, id, status); err != nil {
			m.logger.Warn("failed to persist run finish", logging.String("run_id", id), logging.Err(err))
		}
	}
	if m.cache != nil {
		if err := m.cache.Set(ctx, runStateCacheKey(id), finalState, cachedStateTTL); err != nil {
			m.logger.Warn("failed to cache run state", logging.String("run_id", id), logging.Err(err))
		}
	}
	m.publishRunFinished(ctx, id, status, eventCount, simTime)
}

func runStateCacheKey(id string) string {
	return "run:" + id + ":state"
}

// StopRun cancels a running simulation's goroutine; it is a no-op if the run
// is not currently running.
func (m *Manager) StopRun(id string) error {
	m.mu.RLock()
	r, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return errors.NotFound("run not found: " + id)
	}
	r.cancel()
	return nil
}

// GetRun returns the current state of a tracked run. When the run isn't
// tracked by this Manager instance (e.g. a dashboard polling a different
// process than the one that drove the run to completion) and a cache is
// configured, it falls back to the cached terminal state written by
// finalize.
func (m *Manager) GetRun(id string) (RunState, error) {
	m.mu.RLock()
	r, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		if m.cache != nil {
			var cached RunState
			if err := m.cache.Get(context.Background(), runStateCacheKey(id), &cached); err == nil {
				return cached, nil
			}
		}
		return RunState{}, errors.NotFound("run not found: " + id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, nil
}

// Report returns every observable's sampled trajectory for a tracked run.
func (m *Manager) Report(id string) (*monitor.Monitor, error) {
	m.mu.RLock()
	r, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("run not found: " + id)
	}
	return r.mon, nil
}

func (m *Manager) publishRunStarted(ctx context.Context, id string, req StartRunRequest, seed2 uint64) {
	if m.publisher == nil {
		return
	}
	env, err := kafka.NewEventEnvelope("run.started", "sitesim", kafka.RunStartedPayload{
		RunID:     id,
		Seed1:     req.Seed,
		Seed2:     seed2,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	msg, err := env.ToMessage(kafka.TopicRunStarted)
	if err != nil {
		return
	}
	if err := m.publisher.Publish(ctx, msg); err != nil {
		m.logger.Warn("failed to publish run started event", logging.String("run_id", id), logging.Err(err))
	}
}

func (m *Manager) publishRunFinished(ctx context.Context, id, status string, eventCount uint64, simTime float64) {
	if m.publisher == nil {
		return
	}
	env, err := kafka.NewEventEnvelope("run.finished", "sitesim", kafka.RunFinishedPayload{
		RunID:      id,
		Status:     status,
		EventCount: eventCount,
		FinalTime:  simTime,
		FinishedAt: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	msg, err := env.ToMessage(kafka.TopicRunFinished)
	if err != nil {
		return
	}
	if err := m.publisher.Publish(ctx, msg); err != nil {
		m.logger.Warn("failed to publish run finished event", logging.String("run_id", id), logging.Err(err))
	}
}

func (m *Manager) publishAlarm(ctx context.Context, id, conditionName string, simTime float64) {
	if m.publisher == nil {
		return
	}
	env, err := kafka.NewEventEnvelope("alarm.triggered", "sitesim", kafka.AlarmTriggeredPayload{
		RunID:         id,
		ConditionName: conditionName,
		SimTime:       simTime,
		TriggeredAt:   time.Now().UTC(),
	})
	if err != nil {
		return
	}
	msg, err := env.ToMessage(kafka.TopicAlarmTriggered)
	if err != nil {
		return
	}
	if err := m.publisher.Publish(ctx, msg); err != nil {
		m.logger.Warn("failed to publish alarm event", logging.String("run_id", id), logging.Err(err))
	}
}
