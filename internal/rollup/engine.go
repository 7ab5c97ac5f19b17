package rollup

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/theirongolddev/costroll/internal/model"
)

// Ledgers reads the rollup inputs for one project. Implementations must be
// safe for concurrent use.
type Ledgers interface {
	Dictionary(ctx context.Context) (model.Dictionary, error)
	BudgetLines(ctx context.Context, projectID string) ([]model.BudgetLine, error)
	ApprovedModifications(ctx context.Context, projectID string) ([]model.BudgetModification, error)
	ChangeOrders(ctx context.Context, projectID string) ([]model.ChangeOrder, error)
	DirectCosts(ctx context.Context, projectID string) ([]model.DirectCost, error)
	Commitments(ctx context.Context, projectID string) ([]model.Commitment, error)
}

// Source opens a consistent view of the ledgers for the duration of fn.
type Source interface {
	Snapshot(ctx context.Context, fn func(Ledgers) error) error
}

// Ledger source names reported in Rollup.Degraded.
const (
	SourceDictionary    = "dictionary"
	SourceBudgetLines   = "budget_lines"
	SourceModifications = "budget_modifications"
	SourceChangeOrders  = "change_orders"
	SourceDirectCosts   = "direct_costs"
	SourceCommitments   = "commitments"
)

// Options tune how the engine reads its sources.
type Options struct {
	Attribution    Attribution
	SourceTimeout  time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DefaultOptions returns primary attribution, a 5s per-read timeout and
// three attempts starting at 100ms backoff.
func DefaultOptions() Options {
	return Options{
		Attribution:    Primary{},
		SourceTimeout:  5 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
	}
}

// Engine computes rollups from a Source.
type Engine struct {
	src  Source
	opts Options
	now  func() time.Time
}

// NewEngine returns an Engine reading from src.
func NewEngine(src Source, opts Options) *Engine {
	if opts.Attribution == nil {
		opts.Attribution = Primary{}
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Engine{src: src, opts: opts, now: func() time.Time { return time.Now().UTC() }}
}

// GetBudgetRollup reads every ledger inside one snapshot and aggregates
// them. Each read is retried with exponential backoff. When a read still
// fails the rollup fails with model.ErrSourceUnavailable, unless bestEffort
// is set and the source is neither the budget lines nor the dictionary: then
// the source counts as empty and is named in Rollup.Degraded.
func (e *Engine) GetBudgetRollup(ctx context.Context, projectID string, bestEffort bool) (model.Rollup, error) {
	if projectID == "" {
		return model.Rollup{}, fmt.Errorf("%w: project id is required", model.ErrInvalidRequest)
	}
	in, degraded, err := e.load(ctx, projectID, bestEffort)
	if err != nil {
		return model.Rollup{}, err
	}

	lines := Aggregate(in, e.opts.Attribution)
	return model.Rollup{
		ProjectID:   projectID,
		Lines:       lines,
		GrandTotals: Totals(lines),
		Degraded:    degraded,
		GeneratedAt: e.now(),
	}, nil
}

// GetCostCodeDetails reads the ledgers like GetBudgetRollup and lists the
// rows that feed one cost code.
func (e *Engine) GetCostCodeDetails(ctx context.Context, projectID, costCode string, bestEffort bool) (model.CostCodeDetails, error) {
	if projectID == "" || costCode == "" {
		return model.CostCodeDetails{}, fmt.Errorf("%w: project id and cost code are required", model.ErrInvalidRequest)
	}
	in, degraded, err := e.load(ctx, projectID, bestEffort)
	if err != nil {
		return model.CostCodeDetails{}, err
	}
	d := Details(in, costCode)
	d.ProjectID = projectID
	d.Degraded = degraded
	d.GeneratedAt = e.now()
	return d, nil
}

// load reads every ledger of the project inside one snapshot. Degraded
// source names are returned sorted.
func (e *Engine) load(ctx context.Context, projectID string, bestEffort bool) (Input, []string, error) {
	var (
		in       Input
		mu       sync.Mutex
		degraded []string
	)
	optional := func(ctx context.Context, name string, err error) error {
		if err == nil {
			return nil
		}
		if !bestEffort || ctx.Err() != nil {
			return err
		}
		mu.Lock()
		degraded = append(degraded, name)
		mu.Unlock()
		return nil
	}

	err := e.src.Snapshot(ctx, func(l Ledgers) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			in.Dictionary, err = fetch(gctx, e.opts, SourceDictionary, l.Dictionary)
			return err
		})
		g.Go(func() error {
			var err error
			in.Lines, err = fetch(gctx, e.opts, SourceBudgetLines, func(ctx context.Context) ([]model.BudgetLine, error) {
				return l.BudgetLines(ctx, projectID)
			})
			return err
		})
		g.Go(func() error {
			var err error
			in.Modifications, err = fetch(gctx, e.opts, SourceModifications, func(ctx context.Context) ([]model.BudgetModification, error) {
				return l.ApprovedModifications(ctx, projectID)
			})
			return optional(gctx, SourceModifications, err)
		})
		g.Go(func() error {
			var err error
			in.ChangeOrders, err = fetch(gctx, e.opts, SourceChangeOrders, func(ctx context.Context) ([]model.ChangeOrder, error) {
				return l.ChangeOrders(ctx, projectID)
			})
			return optional(gctx, SourceChangeOrders, err)
		})
		g.Go(func() error {
			var err error
			in.DirectCosts, err = fetch(gctx, e.opts, SourceDirectCosts, func(ctx context.Context) ([]model.DirectCost, error) {
				return l.DirectCosts(ctx, projectID)
			})
			return optional(gctx, SourceDirectCosts, err)
		})
		g.Go(func() error {
			var err error
			in.Commitments, err = fetch(gctx, e.opts, SourceCommitments, func(ctx context.Context) ([]model.Commitment, error) {
				return l.Commitments(ctx, projectID)
			})
			return optional(gctx, SourceCommitments, err)
		})
		return g.Wait()
	})
	if err != nil {
		return Input{}, nil, err
	}
	sort.Strings(degraded)
	return in, degraded, nil
}

// fetch runs read with a per-attempt timeout and bounded exponential
// retry. Exhausted retries are reported as model.ErrSourceUnavailable;
// cancellation of ctx itself is returned as is.
func fetch[T any](ctx context.Context, opts Options, name string, read func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if opts.InitialBackoff > 0 {
		b.InitialInterval = opts.InitialBackoff
	}

	op := func() (T, error) {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, backoff.Permanent(err)
		}
		actx, cancel := ctx, context.CancelFunc(func() {})
		if opts.SourceTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, opts.SourceTimeout)
		}
		defer cancel()
		v, err := read(actx)
		if err != nil && ctx.Err() != nil {
			return v, backoff.Permanent(ctx.Err())
		}
		return v, err
	}

	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(max(opts.MaxAttempts, 1))))
	if err != nil {
		if ctx.Err() != nil {
			return v, ctx.Err()
		}
		return v, fmt.Errorf("%w: %s: %v", model.ErrSourceUnavailable, name, err)
	}
	return v, nil
}
