package visibility

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matst80/slask-archive/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	visibilityChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slaskarchive_visibility_changes_total",
		Help: "The total number of effective visibility transitions",
	})
	ancestorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slaskarchive_visibility_ancestor_failures_total",
		Help: "The total number of ancestor lookups that failed open",
	})
)

var ErrNotContainer = errors.New("entity is not a series or service type")

// Store persists classifications, author preferences and container membership.
type Store interface {
	Parents(ctx context.Context, id types.ItemId) ([]types.Container, error)
	Members(ctx context.Context, ref types.EntityRef) ([]types.ItemId, error)
	Visibility(ctx context.Context, ref types.EntityRef) (types.VisibilityState, error)
	SetVisibility(ctx context.Context, ref types.EntityRef, state types.VisibilityState) error
	Preference(ctx context.Context, id types.ItemId) (*bool, error)
	SetPreference(ctx context.Context, id types.ItemId, show bool) error
	Excluded(ctx context.Context, ref types.EntityRef) (bool, error)
	SetExcluded(ctx context.Context, ref types.EntityRef, exclude bool) error
}

// Listener receives every effective state transition.
type Listener func(ctx context.Context, change types.VisibilityChange)

// SettledListener receives the transitions of one finished save, once.
type SettledListener func(ctx context.Context, changes []types.VisibilityChange)

// Engine keeps item visibility consistent with the containers it belongs to.
type Engine struct {
	store     Store
	logger    *zap.Logger
	mu        sync.RWMutex
	listeners []Listener
	settled   []SettledListener
	now       func() time.Time
}

type saveKey struct{}

// save collects the transitions of one top level operation.
type save struct {
	mu      sync.Mutex
	changes []types.VisibilityChange
}

func NewEngine(store Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (e *Engine) Subscribe(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// OnSettled registers l for the end of every save that changed anything.
func (e *Engine) OnSettled(l SettledListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settled = append(e.settled, l)
}

// begin opens a save scope. Nested calls join the outer scope and their
// finish is a no-op.
func (e *Engine) begin(ctx context.Context) (context.Context, func()) {
	if _, ok := ctx.Value(saveKey{}).(*save); ok {
		return ctx, func() {}
	}
	sv := &save{}
	ctx = context.WithValue(ctx, saveKey{}, sv)
	return ctx, func() {
		sv.mu.Lock()
		changes := sv.changes
		sv.changes = nil
		sv.mu.Unlock()
		if len(changes) == 0 {
			return
		}
		e.mu.RLock()
		settled := append([]SettledListener(nil), e.settled...)
		e.mu.RUnlock()
		for _, l := range settled {
			func() {
				defer func() {
					if r := recover(); r != nil {
						e.logger.Error("visibility settled listener panicked", zap.Int("changes", len(changes)), zap.Any("panic", r))
					}
				}()
				l(ctx, changes)
			}()
		}
	}
}

// ShouldBeVisible is false when any series or service type of the item is
// excluded from the main list. Lookup failures count as visible.
func (e *Engine) ShouldBeVisible(ctx context.Context, id types.ItemId) bool {
	visible, err := e.ancestorsAllowed(ctx, id)
	if err != nil {
		ancestorFailures.Inc()
		e.logger.Warn("ancestor lookup failed, treating item as visible", zap.Uint32("item", id), zap.Error(err))
		return true
	}
	return visible
}

func (e *Engine) ancestorsAllowed(ctx context.Context, id types.ItemId) (visible bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			visible, err = true, fmt.Errorf("resolve ancestors: panic: %v", r)
		}
	}()
	parents, err := e.store.Parents(ctx, id)
	if err != nil {
		return true, err
	}
	for _, p := range parents {
		if p.ExcludeFromMainList {
			return false, nil
		}
	}
	return true, nil
}

// SetVisibility assigns the effective state. Listeners are only notified when
// the stored state actually changes.
func (e *Engine) SetVisibility(ctx context.Context, ref types.EntityRef, visible bool) (bool, error) {
	ctx, finish := e.begin(ctx)
	defer finish()
	to := types.StateFor(visible)
	from, err := e.store.Visibility(ctx, ref)
	if err != nil {
		return false, fmt.Errorf("read visibility of %s %d: %w", ref.Kind, ref.Id, err)
	}
	if from == to {
		return false, nil
	}
	if err = e.store.SetVisibility(ctx, ref, to); err != nil {
		return false, fmt.Errorf("write visibility of %s %d: %w", ref.Kind, ref.Id, err)
	}
	visibilityChanges.Inc()
	e.emit(ctx, types.VisibilityChange{
		EventId: uuid.NewString(),
		Ref:     ref,
		From:    from,
		To:      to,
		At:      e.now().UTC(),
	})
	return true, nil
}

func (e *Engine) emit(ctx context.Context, change types.VisibilityChange) {
	if sv, ok := ctx.Value(saveKey{}).(*save); ok {
		sv.mu.Lock()
		sv.changes = append(sv.changes, change)
		sv.mu.Unlock()
	}
	e.mu.RLock()
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.RUnlock()
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("visibility listener panicked", zap.String("event", change.EventId), zap.Any("panic", r))
				}
			}()
			l(ctx, change)
		}()
	}
}

// OnItemSave stores the author's preference (when given) and derives the
// effective state: hidden when an ancestor excludes the item, otherwise the
// preference, defaulting to public.
func (e *Engine) OnItemSave(ctx context.Context, id types.ItemId, showInMainList *bool) error {
	ctx, finish := e.begin(ctx)
	defer finish()
	if showInMainList != nil {
		if err := e.store.SetPreference(ctx, id, *showInMainList); err != nil {
			return fmt.Errorf("save preference of item %d: %w", id, err)
		}
	}
	_, err := e.evaluateItem(ctx, id)
	return err
}

func (e *Engine) evaluateItem(ctx context.Context, id types.ItemId) (bool, error) {
	if !e.ShouldBeVisible(ctx, id) {
		return e.SetVisibility(ctx, types.ItemRef(id), false)
	}
	pref, err := e.store.Preference(ctx, id)
	if err != nil {
		return false, fmt.Errorf("read preference of item %d: %w", id, err)
	}
	return e.SetVisibility(ctx, types.ItemRef(id), pref == nil || *pref)
}

// OnContainerSave stores the exclusion flag, classifies the container and
// propagates to its items.
func (e *Engine) OnContainerSave(ctx context.Context, ref types.EntityRef, excludeFromMainList bool) error {
	if !ref.Kind.IsContainer() {
		return fmt.Errorf("%s %d: %w", ref.Kind, ref.Id, ErrNotContainer)
	}
	ctx, finish := e.begin(ctx)
	defer finish()
	if err := e.store.SetExcluded(ctx, ref, excludeFromMainList); err != nil {
		return fmt.Errorf("save exclusion of %s %d: %w", ref.Kind, ref.Id, err)
	}
	if _, err := e.SetVisibility(ctx, ref, !excludeFromMainList); err != nil {
		return err
	}
	return e.propagate(ctx, ref, excludeFromMainList)
}

// Propagate re-applies the container's stored exclusion to itself and all of
// its items. It is safe to re-run and heals a partially applied save.
func (e *Engine) Propagate(ctx context.Context, ref types.EntityRef) error {
	if !ref.Kind.IsContainer() {
		return fmt.Errorf("%s %d: %w", ref.Kind, ref.Id, ErrNotContainer)
	}
	ctx, finish := e.begin(ctx)
	defer finish()
	excluded, err := e.store.Excluded(ctx, ref)
	if err != nil {
		return fmt.Errorf("read exclusion of %s %d: %w", ref.Kind, ref.Id, err)
	}
	if _, err = e.SetVisibility(ctx, ref, !excluded); err != nil {
		return err
	}
	return e.propagate(ctx, ref, excluded)
}

// propagate walks the members one by one; a failing item is recorded and the
// walk continues.
func (e *Engine) propagate(ctx context.Context, ref types.EntityRef, excluded bool) error {
	members, err := e.store.Members(ctx, ref)
	if err != nil {
		return fmt.Errorf("list members of %s %d: %w", ref.Kind, ref.Id, err)
	}
	var errs []error
	changed := 0
	for _, id := range members {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		var c bool
		if excluded {
			c, err = e.SetVisibility(ctx, types.ItemRef(id), false)
		} else {
			c, err = e.evaluateItem(ctx, id)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if c {
			changed++
		}
	}
	e.logger.Info("visibility propagated",
		zap.String("kind", string(ref.Kind)),
		zap.Uint32("id", ref.Id),
		zap.Bool("excluded", excluded),
		zap.Int("items", len(members)),
		zap.Int("changed", changed),
		zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// Status describes an item for editors.
type Status struct {
	State      types.VisibilityState `json:"state"`
	Visible    bool                  `json:"visible"`
	Preference *bool                 `json:"preference"`
	// Inherited is set when a series or service type forces the item hidden.
	Inherited bool `json:"inherited"`
}

func (e *Engine) Status(ctx context.Context, id types.ItemId) (Status, error) {
	state, err := e.store.Visibility(ctx, types.ItemRef(id))
	if err != nil {
		return Status{}, fmt.Errorf("read visibility of item %d: %w", id, err)
	}
	pref, err := e.store.Preference(ctx, id)
	if err != nil {
		return Status{}, fmt.Errorf("read preference of item %d: %w", id, err)
	}
	return Status{
		State:      state,
		Visible:    state.Visible(),
		Preference: pref,
		Inherited:  !e.ShouldBeVisible(ctx, id),
	}, nil
}

// Constrain limits q to public or unclassified items unless the query itself
// opts out. The opt-out lives on the query and so never outlasts a request.
func (e *Engine) Constrain(q *types.Query) {
	if q.IgnoreVisibility {
		q.Visibility = types.AnyVisibility
		return
	}
	q.Visibility = types.VisibleOnly
}
