package pager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// pagedFetch serves fixed pages keyed by cursor and records every cursor
// it was asked for.
type pagedFetch struct {
	mu      sync.Mutex
	pages   map[string]Page[int]
	cursors []string
	block   chan struct{} // when non-nil, Load blocks until closed
}

func (f *pagedFetch) fetch(ctx context.Context, cursor string, limit int) (Page[int], error) {
	f.mu.Lock()
	f.cursors = append(f.cursors, cursor)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	page, ok := f.pages[cursor]
	if !ok {
		return Page[int]{}, errors.New("unknown cursor " + cursor)
	}
	return page, nil
}

func threePages() *pagedFetch {
	return &pagedFetch{pages: map[string]Page[int]{
		"":   {Items: []int{1, 2}, NextCursor: "c1", HasMore: true},
		"c1": {Items: []int{3, 4}, NextCursor: "c2", HasMore: true},
		"c2": {Items: []int{5}, HasMore: false},
	}}
}

func TestLoadAccumulatesWithoutRepeatsOrSkips(t *testing.T) {
	f := threePages()
	p := New("test", 2, f.fetch)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		loaded, err := p.Load(ctx)
		if err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
		if !loaded {
			t.Fatalf("load %d reported nothing loaded", i)
		}
	}

	got := p.Items()
	want := []int{1, 2, 3, 4, 5}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("items = %v, want %v", got, want)
	}
	if p.HasMore() {
		t.Fatal("HasMore should be false after the last page")
	}

	// A fourth load must not hit the backend.
	before := len(f.cursors)
	loaded, err := p.Load(ctx)
	if err != nil || loaded {
		t.Fatalf("load past exhaustion: loaded=%v err=%v", loaded, err)
	}
	if len(f.cursors) != before {
		t.Fatal("exhausted pager still fetched")
	}
}

func TestCursorAdvancesMonotonically(t *testing.T) {
	f := threePages()
	p := New("test", 2, f.fetch)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := p.Load(ctx); err != nil {
			t.Fatal(err)
		}
	}
	want := []string{"", "c1", "c2"}
	if fmt.Sprint(f.cursors) != fmt.Sprint(want) {
		t.Fatalf("cursors = %v, want %v", f.cursors, want)
	}
}

func TestLoadWhileInFlightReturnsImmediately(t *testing.T) {
	f := threePages()
	f.block = make(chan struct{})
	p := New("test", 2, f.fetch)
	ctx := context.Background()

	winner := make(chan bool)
	go func() {
		loaded, err := p.Load(ctx)
		if err != nil {
			t.Errorf("winner load: %v", err)
		}
		winner <- loaded
	}()

	// Wait until the winner is inside the fetch.
	waitFor(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.cursors) == 1
	})

	// Every Load during the in-flight window is a no-op.
	for i := 0; i < 4; i++ {
		loaded, err := p.Load(ctx)
		if err != nil {
			t.Fatalf("overlapping load %d: %v", i, err)
		}
		if loaded {
			t.Fatalf("overlapping load %d fetched a page", i)
		}
	}

	close(f.block)
	if !<-winner {
		t.Fatal("winner load reported nothing loaded")
	}
	if got := p.Len(); got != 2 {
		t.Fatalf("len = %d, want 2 (a single page)", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestFailedLoadLeavesStateUntouched(t *testing.T) {
	f := &pagedFetch{pages: map[string]Page[int]{}}
	p := New("test", 2, f.fetch)

	if _, err := p.Load(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
	if p.Len() != 0 {
		t.Fatal("failed load must not append items")
	}
	if !p.HasMore() {
		t.Fatal("failed load must not mark the list exhausted")
	}
	// The retry asks for the same cursor again.
	f.pages[""] = Page[int]{Items: []int{1}, HasMore: false}
	if _, err := p.Load(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if fmt.Sprint(f.cursors) != fmt.Sprint([]string{"", ""}) {
		t.Fatalf("cursors = %v, want the same cursor twice", f.cursors)
	}
}

func TestRefreshRestartsFromTheTop(t *testing.T) {
	f := threePages()
	p := New("test", 2, f.fetch)
	ctx := context.Background()

	_, _ = p.Load(ctx) // nolint:errcheck
	_, _ = p.Load(ctx) // nolint:errcheck
	if err := p.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	got := p.Items()
	want := []int{1, 2}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("items after refresh = %v, want %v", got, want)
	}
}

func TestRefreshWaitsOutInFlightLoad(t *testing.T) {
	f := threePages()
	f.block = make(chan struct{})
	p := New("test", 2, f.fetch)
	ctx := context.Background()

	go func() {
		_, _ = p.Load(ctx) // nolint:errcheck
	}()
	waitFor(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.cursors) == 1
	})

	done := make(chan error, 1)
	go func() { done <- p.Refresh(ctx) }()

	// A refresh racing an in-flight load must not be skipped: it waits.
	select {
	case <-done:
		t.Fatal("refresh returned while a load was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(f.block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	got := p.Items()
	want := []int{1, 2}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("items after refresh = %v, want the first page only %v", got, want)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if fmt.Sprint(f.cursors) != fmt.Sprint([]string{"", ""}) {
		t.Fatalf("cursors = %v, want the refresh to refetch from the top", f.cursors)
	}
}

func TestEnrichFailureKeepsItems(t *testing.T) {
	f := threePages()
	p := New("test", 2, f.fetch).WithEnrich(func(ctx context.Context, items []int) error {
		return errors.New("enrichment backend down")
	})

	loaded, err := p.Load(context.Background())
	if err != nil || !loaded {
		t.Fatalf("load: loaded=%v err=%v", loaded, err)
	}
	if p.Len() != 2 {
		t.Fatalf("len = %d, want un-enriched items kept", p.Len())
	}
}

func TestEnrichMutatesItemsInPlace(t *testing.T) {
	f := threePages()
	p := New("test", 2, f.fetch).WithEnrich(func(ctx context.Context, items []int) error {
		for i := range items {
			items[i] *= 10
		}
		return nil
	})

	if _, err := p.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := p.Items()
	want := []int{10, 20}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("items = %v, want %v", got, want)
	}
}
