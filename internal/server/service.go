// Package server exposes the budget engine over HTTP and streams rollup
// changes to SSE subscribers.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/theirongolddev/costroll/internal/budget"
	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/money"
	"github.com/theirongolddev/costroll/internal/rollup"
)

// Config controls the server runtime behavior.
type Config struct {
	Addr            string
	RefreshInterval time.Duration
	EventsBuffer    int
	Projects        []string // projects refreshed from startup
	Currency        string
}

// Snapshot is the compact rollup state carried by events.
type Snapshot struct {
	At                        time.Time   `json:"at"`
	ProjectID                 string      `json:"project_id"`
	Lines                     int         `json:"lines"`
	OriginalAmount            money.Money `json:"original_amount"`
	RevisedBudget             money.Money `json:"revised_budget"`
	JobToDateCost             money.Money `json:"job_to_date_cost"`
	CommittedCosts            money.Money `json:"committed_costs"`
	PendingCostChanges        money.Money `json:"pending_cost_changes"`
	EstimatedCostAtCompletion money.Money `json:"estimated_cost_at_completion"`
	ProjectedOverUnder        money.Money `json:"projected_over_under"`
}

// Delta captures snapshot changes between refreshes.
type Delta struct {
	RevisedBudget             money.Money `json:"revised_budget"`
	JobToDateCost             money.Money `json:"job_to_date_cost"`
	CommittedCosts            money.Money `json:"committed_costs"`
	PendingCostChanges        money.Money `json:"pending_cost_changes"`
	EstimatedCostAtCompletion money.Money `json:"estimated_cost_at_completion"`
}

func (d Delta) isZero() bool {
	return d.RevisedBudget.IsZero() &&
		d.JobToDateCost.IsZero() &&
		d.CommittedCosts.IsZero() &&
		d.PendingCostChanges.IsZero() &&
		d.EstimatedCostAtCompletion.IsZero()
}

// Event is emitted whenever a project's rollup changes.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	ProjectID string    `json:"project_id"`
	Snapshot  Snapshot  `json:"snapshot"`
	Delta     Delta     `json:"delta"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt          time.Time `json:"started_at"`
	LastRefreshAt      time.Time `json:"last_refresh_at"`
	RefreshIntervalSec int       `json:"refresh_interval_sec"`
	RefreshCount       int64     `json:"refresh_count"`
	Projects           []string  `json:"projects"`
	LastError          string    `json:"last_error,omitempty"`
	EventCount         int       `json:"event_count"`
	SubscriberCount    int       `json:"subscriber_count"`
}

// Service provides the HTTP API and the refresh loop.
type Service struct {
	cfg    Config
	budget *budget.Service
	engine *rollup.Engine
	auth   Authorizer

	mu            sync.RWMutex
	startedAt     time.Time
	lastRefreshAt time.Time
	refreshCount  int64
	lastError     string
	snapshots     map[string]Snapshot
	watched       map[string]bool
	nextEventID   int64
	events        []Event

	nextSubID int
	subs      map[int]subscriber
}

type subscriber struct {
	project string
	ch      chan Event
}

// Option customizes a Service.
type Option func(*Service)

// WithAuthorizer sets the authorization collaborator consulted before
// every request. The default allows everything.
func WithAuthorizer(a Authorizer) Option {
	return func(s *Service) { s.auth = a }
}

// New returns a server over the budget service and rollup engine.
func New(cfg Config, svc *budget.Service, engine *rollup.Engine, opts ...Option) *Service {
	if cfg.RefreshInterval < 2*time.Second {
		cfg.RefreshInterval = 15 * time.Second
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8788"
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}

	s := &Service{
		cfg:       cfg,
		budget:    svc,
		engine:    engine,
		auth:      AllowAll{},
		startedAt: time.Now(),
		snapshots: make(map[string]Snapshot),
		watched:   make(map[string]bool),
		subs:      make(map[int]subscriber),
	}
	for _, p := range cfg.Projects {
		s.watched[p] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run serves HTTP and refreshes watched rollups until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Seed snapshots so status and streams are useful immediately.
	s.refreshAll(ctx)

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case <-ticker.C:
			s.refreshAll(ctx)
		case err := <-errCh:
			return fmt.Errorf("http server: %w", err)
		}
	}
}

func (s *Service) watch(projectID string) {
	s.mu.Lock()
	s.watched[projectID] = true
	s.mu.Unlock()
}

func (s *Service) watchedProjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.watched))
	for p := range s.watched {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *Service) refreshAll(ctx context.Context) {
	for _, p := range s.watchedProjects() {
		if _, err := s.refresh(ctx, p); err != nil {
			log.Printf("costroll server: refresh %s: %v", p, err)
		}
	}
}

// refresh recomputes a project's rollup, publishing an event when its
// totals changed.
func (s *Service) refresh(ctx context.Context, projectID string) (model.Rollup, error) {
	r, err := s.engine.GetBudgetRollup(ctx, projectID, false)
	now := time.Now()
	if err != nil {
		s.mu.Lock()
		s.lastError = fmt.Sprintf("%s: %v", projectID, err)
		s.lastRefreshAt = now
		s.refreshCount++
		s.mu.Unlock()
		return r, err
	}
	s.record(r, now)
	return r, nil
}

func (s *Service) record(r model.Rollup, now time.Time) {
	snap := snapshotFromRollup(r, now)

	var (
		ev      Event
		publish bool
	)

	s.mu.Lock()
	prev, prevExists := s.snapshots[r.ProjectID]
	s.snapshots[r.ProjectID] = snap
	s.watched[r.ProjectID] = true
	s.lastRefreshAt = now
	s.refreshCount++
	s.lastError = ""

	if !prevExists {
		s.nextEventID++
		ev = Event{ID: s.nextEventID, Type: "snapshot", Timestamp: now, ProjectID: r.ProjectID, Snapshot: snap}
		publish = true
	} else if delta := diffSnapshots(prev, snap); !delta.isZero() {
		s.nextEventID++
		ev = Event{ID: s.nextEventID, Type: "rollup_delta", Timestamp: now, ProjectID: r.ProjectID, Snapshot: snap, Delta: delta}
		publish = true
	}
	s.mu.Unlock()

	if publish {
		s.publishEvent(ev)
	}
}

func snapshotFromRollup(r model.Rollup, at time.Time) Snapshot {
	g := r.GrandTotals
	return Snapshot{
		At:                        at,
		ProjectID:                 r.ProjectID,
		Lines:                     len(r.Lines),
		OriginalAmount:            g.OriginalAmount,
		RevisedBudget:             g.RevisedBudget,
		JobToDateCost:             g.JobToDateCost,
		CommittedCosts:            g.CommittedCosts,
		PendingCostChanges:        g.PendingCostChanges,
		EstimatedCostAtCompletion: g.EstimatedCostAtCompletion,
		ProjectedOverUnder:        g.ProjectedOverUnder,
	}
}

func diffSnapshots(prev, curr Snapshot) Delta {
	return Delta{
		RevisedBudget:             curr.RevisedBudget.Sub(prev.RevisedBudget),
		JobToDateCost:             curr.JobToDateCost.Sub(prev.JobToDateCost),
		CommittedCosts:            curr.CommittedCosts.Sub(prev.CommittedCosts),
		PendingCostChanges:        curr.PendingCostChanges.Sub(prev.PendingCostChanges),
		EstimatedCostAtCompletion: curr.EstimatedCostAtCompletion.Sub(prev.EstimatedCostAtCompletion),
	}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, sub := range s.subs {
		if sub.project != "" && sub.project != ev.ProjectID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	projects := s.watchedProjects()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:          s.startedAt,
		LastRefreshAt:      s.lastRefreshAt,
		RefreshIntervalSec: int(s.cfg.RefreshInterval.Seconds()),
		RefreshCount:       s.refreshCount,
		Projects:           projects,
		LastError:          s.lastError,
		EventCount:         len(s.events),
		SubscriberCount:    len(s.subs),
	}
}

func (s *Service) addSubscriber(project string, ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = subscriber{project: project, ch: ch}
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
