// Package pager implements cursor-based incremental list loading with
// in-flight and exhaustion guards.
package pager

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kelvinkbk/xavlink-sub001/internal/logger"
	"github.com/kelvinkbk/xavlink-sub001/internal/metrics"
)

// Page is one fetched slice plus the cursor for the next one.
type Page[T any] struct {
	Items      []T
	NextCursor string
	HasMore    bool
}

// FetchFunc loads one page starting at cursor (empty cursor means the
// beginning of the list).
type FetchFunc[T any] func(ctx context.Context, cursor string, limit int) (Page[T], error)

// EnrichFunc decorates freshly fetched items in place. Enrichment is
// best-effort: an error keeps the un-enriched items and does not fail
// the load.
type EnrichFunc[T any] func(ctx context.Context, items []T) error

// Pager accumulates pages of T. The cursor only moves forward: a page is
// appended and the cursor advanced atomically, so items never repeat and
// never skip regardless of how callers interleave Load and Refresh.
type Pager[T any] struct {
	name   string
	limit  int
	fetch  FetchFunc[T]
	enrich EnrichFunc[T]
	log    *zap.Logger

	mu       sync.Mutex
	idle     *sync.Cond // signalled when an in-flight fetch finishes
	items    []T
	cursor   string
	hasMore  bool
	inFlight bool
	loaded   bool
}

// New builds a pager. name labels metrics and logs; limit is the page
// size requested from the backend.
func New[T any](name string, limit int, fetch FetchFunc[T]) *Pager[T] {
	p := &Pager[T]{
		name:    name,
		limit:   limit,
		fetch:   fetch,
		log:     logger.New("pager"),
		hasMore: true,
	}
	p.idle = sync.NewCond(&p.mu)
	return p
}

// WithEnrich attaches a best-effort decoration step applied to each
// fetched page before it becomes visible.
func (p *Pager[T]) WithEnrich(enrich EnrichFunc[T]) *Pager[T] {
	p.enrich = enrich
	return p
}

// Load fetches the next page. Calls while a fetch is in flight or after
// the list is exhausted return immediately with loaded=false; only one
// request per pager is ever outstanding.
func (p *Pager[T]) Load(ctx context.Context) (loaded bool, err error) {
	p.mu.Lock()
	if p.inFlight || !p.hasMore {
		p.mu.Unlock()
		return false, nil
	}
	p.inFlight = true
	cursor := p.cursor
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.idle.Broadcast()
		p.mu.Unlock()
	}()

	page, err := p.fetch(ctx, cursor, p.limit)
	if err != nil {
		return false, err
	}

	if p.enrich != nil && len(page.Items) > 0 {
		if enrichErr := p.enrich(ctx, page.Items); enrichErr != nil {
			p.log.Debug("page enrichment skipped",
				zap.String("list", p.name),
				zap.Error(enrichErr),
			)
		}
	}

	p.mu.Lock()
	p.items = append(p.items, page.Items...)
	p.cursor = page.NextCursor
	p.hasMore = page.HasMore
	p.loaded = true
	p.mu.Unlock()

	metrics.PagesLoaded.WithLabelValues(p.name).Inc()
	return true, nil
}

// Refresh drops the accumulated items and reloads from the top. Used
// after reconnects and pull-to-refresh. A fetch already in flight is
// waited out first so the refresh is never silently skipped; its results
// land, then the reset and refetch happen.
func (p *Pager[T]) Refresh(ctx context.Context) error {
	p.mu.Lock()
	for p.inFlight {
		p.idle.Wait()
	}
	p.items = nil
	p.cursor = ""
	p.hasMore = true
	p.loaded = false
	p.mu.Unlock()

	_, err := p.Load(ctx)
	return err
}

// Items returns a copy of everything loaded so far, in fetch order.
func (p *Pager[T]) Items() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]T, len(p.items))
	copy(out, p.items)
	return out
}

// Mutate applies fn to the accumulated items under the pager's lock.
// Views use it to fold realtime events and optimistic updates into
// already-loaded pages.
func (p *Pager[T]) Mutate(fn func(items []T) []T) {
	p.mu.Lock()
	p.items = fn(p.items)
	p.mu.Unlock()
}

// HasMore reports whether another Load could produce items.
func (p *Pager[T]) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Loaded reports whether at least one page has arrived since the last
// Refresh.
func (p *Pager[T]) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// Len returns the number of accumulated items.
func (p *Pager[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}
