// Package analyze owns the lifecycle of analysis jobs: one background
// task per submission, cooperative cancellation, heartbeats while
// running and exactly one terminal callback delivery per job.
package analyze

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finchlyline/relsleuth/internal/finder"
	"github.com/finchlyline/relsleuth/internal/log"
	"github.com/finchlyline/relsleuth/internal/model"
	"github.com/finchlyline/relsleuth/internal/resolver"
	"github.com/finchlyline/relsleuth/internal/status"
)

var (
	ErrNoURLs     = errors.New("at least one deliverable url is required")
	ErrNoCallback = errors.New("callback uri is required")
	errCancelled  = errors.New("analysis was cancelled")
)

// Manager orchestrates submissions against the status store, the
// external resolution engine and the caller's endpoints.
type Manager struct {
	store    *status.Store
	resolver resolver.Resolver
	notifier *Notifier

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewManager(store *status.Store, r resolver.Resolver, n *Notifier) *Manager {
	return &Manager{
		store:    store,
		resolver: r,
		notifier: n,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Submit registers the request and schedules its background execution.
// It returns the analysis id before any resolution work starts. The
// background task outlives the submitting request's context.
func (m *Manager) Submit(ctx context.Context, payload model.AnalyzePayload) (string, error) {
	if len(payload.URLs) == 0 {
		return "", ErrNoURLs
	}
	if payload.Callback.URI == "" {
		return "", ErrNoCallback
	}
	if payload.Heartbeat != nil {
		if _, err := payload.Heartbeat.Duration(); err != nil {
			return "", err
		}
	}

	id := payload.ID
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now().UTC()
	job := model.AnalysisJob{
		ID:        id,
		URLs:      append([]string(nil), payload.URLs...),
		Callback:  payload.Callback,
		Heartbeat: payload.Heartbeat,
		Status:    model.StatusSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.store.Put(id, job)

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	jobCtx = log.ContextAttrs(jobCtx, slog.String("analysis_id", id))

	m.mu.Lock()
	m.cancels[id] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.release(id)
		m.run(jobCtx, job)
	}()

	slog.InfoContext(ctx, "analysis submitted", "analysis_id", id, "urls", len(job.URLs))
	return id, nil
}

// Status returns a snapshot of the job record, or false when the id is
// unknown or its record expired.
func (m *Manager) Status(id string) (model.AnalysisJob, bool) {
	return m.store.Get(id)
}

// Cancel signals the background task of a live job. It reports false
// for unknown, expired or already terminal jobs; repeating a cancel
// after the job finished is a no-op, never an error.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	job, ok := m.store.Get(id)
	if !ok || job.Status.Terminal() {
		m.mu.Unlock()
		return false
	}
	job.Status = model.StatusCancelling
	job.UpdatedAt = time.Now().UTC()
	m.store.Put(id, job)
	cancel := m.cancels[id]
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	slog.Info("analysis cancellation requested", "analysis_id", id)
	return true
}

// Shutdown cancels every live task and waits for their terminal
// callbacks to go out.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// run is the per-job background task. Every path out of it funnels
// through finalize exactly once.
func (m *Manager) run(ctx context.Context, job model.AnalysisJob) {
	// deliveries survive the job context: a cancelled job still owes
	// the caller its terminal callback
	deliveryCtx := context.WithoutCancel(ctx)

	if !m.markRunning(job.ID) {
		// cancelled between submission and start
		m.finalize(deliveryCtx, nil, job, model.StatusCancelled, nil, errCancelled)
		return
	}

	var ticker *heartbeatTicker
	if job.Heartbeat != nil {
		t, err := startHeartbeat(deliveryCtx, m.notifier, *job.Heartbeat)
		if err != nil {
			slog.WarnContext(ctx, "running without heartbeats", "error", err)
		} else {
			ticker = t
		}
	}

	matches, err := m.resolver.Resolve(ctx, job.URLs)
	switch {
	case cancelled(ctx, err):
		m.finalize(deliveryCtx, ticker, job, model.StatusCancelled, nil, errCancelled)
		return
	case err != nil:
		m.finalize(deliveryCtx, ticker, job, model.StatusFailed, nil, err)
		return
	}

	results := make([]model.FinderResult, 0, len(matches))
	for i, matchSet := range matches {
		// suspension point between archives of different deliverables
		if ctx.Err() != nil {
			m.finalize(deliveryCtx, ticker, job, model.StatusCancelled, nil, errCancelled)
			return
		}
		result, aggErr := finder.Aggregate(ctx, job.ID, job.URLs[i], matchSet)
		if aggErr != nil {
			m.finalize(deliveryCtx, ticker, job, model.StatusFailed, nil, aggErr)
			return
		}
		results = append(results, result)
	}

	m.finalize(deliveryCtx, ticker, job, model.StatusCompleted, results, nil)
}

// markRunning moves SUBMITTED to RUNNING. It fails when a cancel
// arrived first.
func (m *Manager) markRunning(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.store.Get(id)
	if !ok || job.Status != model.StatusSubmitted {
		return false
	}
	job.Status = model.StatusRunning
	job.UpdatedAt = time.Now().UTC()
	m.store.Put(id, job)
	return true
}

// markTerminal writes the sticky terminal state. It reports false when
// the record already reached a terminal state, which suppresses any
// second callback.
func (m *Manager) markTerminal(job model.AnalysisJob, st model.Status, results []model.FinderResult, errMsg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.store.Get(job.ID); ok {
		if current.Status.Terminal() {
			return false
		}
		job = current
	}
	job.Status = st
	job.Results = results
	job.Error = errMsg
	job.UpdatedAt = time.Now().UTC()
	m.store.Put(job.ID, job)
	return true
}

// finalize stops heartbeats, records the terminal state and delivers
// the single terminal callback. Heartbeats are torn down first so no
// heartbeat is ever observed after the callback.
func (m *Manager) finalize(ctx context.Context, ticker *heartbeatTicker, job model.AnalysisJob, st model.Status, results []model.FinderResult, cause error) {
	ticker.Stop(ctx)

	var errMsg string
	if cause != nil {
		errMsg = cause.Error()
	}
	if !m.markTerminal(job, st, results, errMsg) {
		slog.WarnContext(ctx, "job already terminal, skipping callback", "status", string(st))
		return
	}

	report := model.AnalysisReport{
		ID:  job.ID,
		URL: job.URLs[0],
	}
	if st == model.StatusCompleted {
		report.Success = true
		report.Results = results
	} else {
		report.ErrorMessage = errMsg
	}

	if err := m.notifier.Deliver(ctx, job.Callback, report); err != nil {
		// logged only: delivery failure never alters the decided state
		slog.ErrorContext(ctx, "terminal callback delivery failed", "error", err)
	}
	slog.InfoContext(ctx, "analysis finished", "status", string(st))
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[id]; ok {
		cancel()
		delete(m.cancels, id)
	}
}

func cancelled(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}
