// Package assign hands out collision-free identifiers for bulk imports.
//
// Records are grouped by base identifier. The first record of a group gets
// the bare base when it is free, every later record the smallest free
// "base-N". Groups are independent and run in parallel, records inside a
// group are assigned sequentially.
package assign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/marcel-gle/gb-qr-tracker/internal/identifier"
	"github.com/marcel-gle/gb-qr-tracker/internal/metrics"
	"github.com/marcel-gle/gb-qr-tracker/internal/model"
	"github.com/marcel-gle/gb-qr-tracker/internal/store"
)

// DefaultConcurrency bounds the number of groups processed at once.
const DefaultConcurrency = 8

var (
	// ErrAssignmentConflict fails a whole group. It wraps the cause.
	ErrAssignmentConflict = errors.New("assignment conflict")
	// ErrInvalidBase is returned for bases outside the identifier grammar.
	ErrInvalidBase = errors.New("invalid base identifier")
	// ErrSuffixSpaceExhausted is returned when no suffix fits the length limit.
	ErrSuffixSpaceExhausted = errors.New("no identifier fits length limit")
)

// Repository is the store surface the assigner needs.
type Repository interface {
	store.IdentifierIndex
	store.LinkWriter
}

// GroupResult is the outcome for one base. Err is nil or wraps
// ErrAssignmentConflict, in which case Assignments is empty.
type GroupResult struct {
	Base        string
	Assignments []model.Assignment
	Err         error
}

// Assigner computes identifiers and optionally commits the links.
type Assigner struct {
	repo        Repository
	locker      Locker
	concurrency int
	metrics     metrics.Recorder
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures an Assigner.
type Option func(*Assigner)

// WithConcurrency sets the number of groups processed in parallel.
func WithConcurrency(n int) Option {
	return func(a *Assigner) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithLocker serializes imports of the same base across processes.
func WithLocker(l Locker) Option {
	return func(a *Assigner) {
		if l != nil {
			a.locker = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(a *Assigner) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assigner) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Assigner.
func New(repo Repository, opts ...Option) *Assigner {
	a := &Assigner{
		repo:        repo,
		locker:      nopLocker{},
		concurrency: DefaultConcurrency,
		metrics:     metrics.NewNoop(),
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "assigner")
	return a
}

type group struct {
	base    string
	indices []int
}

// groupByBase groups record indices by base in first-appearance order.
func groupByBase(records []model.ImportRecord) ([]group, map[string]struct{}) {
	pos := make(map[string]int)
	bases := make(map[string]struct{})
	var groups []group
	for i, r := range records {
		p, ok := pos[r.BaseIdentifier]
		if !ok {
			p = len(groups)
			pos[r.BaseIdentifier] = p
			groups = append(groups, group{base: r.BaseIdentifier})
			bases[r.BaseIdentifier] = struct{}{}
		}
		groups[p].indices = append(groups[p].indices, i)
	}
	return groups, bases
}

// Assign computes identifiers without writing anything. Results are in
// first-appearance order of the bases.
func (a *Assigner) Assign(ctx context.Context, records []model.ImportRecord) []GroupResult {
	return a.run(ctx, records, a.assignGroup)
}

// Import assigns and commits each group under its lock. A group either
// creates all its links or none.
func (a *Assigner) Import(ctx context.Context, records []model.ImportRecord) []GroupResult {
	return a.run(ctx, records, func(ctx context.Context, g group, batch map[string]struct{}) ([]model.Assignment, error) {
		return a.importGroup(ctx, records, g, batch)
	})
}

type groupFunc func(ctx context.Context, g group, batch map[string]struct{}) ([]model.Assignment, error)

func (a *Assigner) run(ctx context.Context, records []model.ImportRecord, fn groupFunc) []GroupResult {
	groups, batch := groupByBase(records)
	results := make([]GroupResult, len(groups))

	var eg errgroup.Group
	eg.SetLimit(a.concurrency)
	for i, g := range groups {
		i, g := i, g
		eg.Go(func() error {
			assignments, err := fn(ctx, g, batch)
			results[i] = GroupResult{Base: g.base, Assignments: assignments, Err: err}
			if err != nil {
				results[i].Assignments = nil
				a.metrics.IncAssignGroupFailed()
				a.logger.Warn("assign_group_failed", "base", g.base, "records", len(g.indices), "error", err)
				return nil
			}
			a.metrics.AddLinksAssigned(len(assignments))
			return nil
		})
	}
	// Group failures are carried in results; the goroutines never error.
	_ = eg.Wait()

	return results
}

// assignGroup queries the store once and assigns every record of g.
func (a *Assigner) assignGroup(ctx context.Context, g group, batch map[string]struct{}) ([]model.Assignment, error) {
	if !identifier.IsValid(g.base) {
		return nil, fmt.Errorf("%w: %w: %q", ErrAssignmentConflict, ErrInvalidBase, g.base)
	}

	taken, err := a.repo.TakenIdentifiers(ctx, g.base)
	if err != nil {
		return nil, fmt.Errorf("%w: existence query for %q: %w", ErrAssignmentConflict, g.base, err)
	}

	used := make(map[string]struct{}, len(taken)+len(g.indices))
	for _, id := range taken {
		used[id] = struct{}{}
	}

	assignments := make([]model.Assignment, 0, len(g.indices))
	next := 1
	for i, idx := range g.indices {
		id := ""
		if _, ok := used[g.base]; i == 0 && !ok {
			id = g.base
		} else {
			id, next, err = nextFree(g.base, next, used, batch)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrAssignmentConflict, err)
			}
		}
		used[id] = struct{}{}
		assignments = append(assignments, model.Assignment{Index: idx, Base: g.base, Identifier: id})
	}
	return assignments, nil
}

// nextFree returns the smallest base-N with N >= from that is neither used
// nor another base of the batch, and the N to continue from.
func nextFree(base string, from int, used, batch map[string]struct{}) (string, int, error) {
	for n := from; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if utf8.RuneCountInString(candidate) > identifier.MaxLength {
			return "", n, fmt.Errorf("%w: %q", ErrSuffixSpaceExhausted, base)
		}
		if _, ok := used[candidate]; ok {
			continue
		}
		if _, ok := batch[candidate]; ok {
			continue
		}
		return candidate, n + 1, nil
	}
}

func (a *Assigner) importGroup(ctx context.Context, records []model.ImportRecord, g group, batch map[string]struct{}) ([]model.Assignment, error) {
	unlock, err := a.locker.Lock(ctx, g.base)
	if err != nil {
		return nil, fmt.Errorf("%w: lock %q: %w", ErrAssignmentConflict, g.base, err)
	}
	defer func() {
		// Release on a fresh context so a canceled import still unlocks.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if uerr := unlock(releaseCtx); uerr != nil {
			a.logger.Warn("assign_unlock_failed", "base", g.base, "error", uerr)
		}
	}()

	assignments, err := a.assignGroup(ctx, g, batch)
	if err != nil {
		return nil, err
	}

	now := a.now().UTC()
	links := make([]model.Link, len(assignments))
	for i, as := range assignments {
		links[i] = records[as.Index].ToLink(as.Identifier, now)
	}

	if err := a.repo.CreateLinks(ctx, links); err != nil {
		return nil, fmt.Errorf("%w: create links for %q: %w", ErrAssignmentConflict, g.base, err)
	}

	a.logger.Info("assign_group_committed", "base", g.base, "links", len(links))
	return assignments, nil
}
