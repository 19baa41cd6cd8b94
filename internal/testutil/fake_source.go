package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Sternrassler/feedagg/pkg/feed"
	"github.com/Sternrassler/feedagg/pkg/source"
)

// ErrInjected is the cause wrapped by every failure FakeSource injects.
var ErrInjected = errors.New("injected failure")

// FakeSource is an in-memory source.Source with failure injection and call
// accounting. Its zero value is not usable; use NewFakeSource.
type FakeSource struct {
	mu sync.Mutex

	Posts  []feed.Record
	Media  map[int][]feed.MediaItem
	Owners map[int]feed.Owner

	FailPage   bool
	FailMedia  map[int]bool
	FailOwner  map[int]bool
	Delay      time.Duration
	BeforePage func(feed.Cursor)

	PageCalls  []feed.Cursor
	MediaCalls map[int]int
	OwnerCalls map[int]int

	inFlight    int
	maxInFlight int
}

// NewFakeSource creates an empty fake source.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		Media:      make(map[int][]feed.MediaItem),
		Owners:     make(map[int]feed.Owner),
		FailMedia:  make(map[int]bool),
		FailOwner:  make(map[int]bool),
		MediaCalls: make(map[int]int),
		OwnerCalls: make(map[int]int),
	}
}

// FetchPage implements source.Source.
func (f *FakeSource) FetchPage(_ context.Context, cursor feed.Cursor) ([]feed.Record, error) {
	f.mu.Lock()
	f.PageCalls = append(f.PageCalls, cursor)
	fail := f.FailPage
	hook := f.BeforePage
	f.mu.Unlock()

	if hook != nil {
		hook(cursor)
	}

	if fail {
		return nil, &source.TransportError{
			Operation:  source.OpFetchPage,
			URL:        "fake://posts",
			StatusCode: 503,
			Class:      source.ErrorClassServer,
			Err:        ErrInjected,
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	page := []feed.Record{}
	if cursor.Start < len(f.Posts) {
		end := cursor.Start + cursor.Limit
		if end > len(f.Posts) {
			end = len(f.Posts)
		}
		page = append(page, f.Posts[cursor.Start:end]...)
	}
	return page, nil
}

// FetchMedia implements source.Source.
func (f *FakeSource) FetchMedia(_ context.Context, recordID int) ([]feed.MediaItem, error) {
	f.enter()
	defer f.leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.MediaCalls[recordID]++

	if f.FailMedia[recordID] {
		return nil, &source.TransportError{
			Operation: source.OpFetchMedia,
			URL:       "fake://media",
			Class:     source.ErrorClassNetwork,
			Err:       ErrInjected,
		}
	}
	items := f.Media[recordID]
	if items == nil {
		items = []feed.MediaItem{}
	}
	return append([]feed.MediaItem(nil), items...), nil
}

// FetchOwner implements source.Source.
func (f *FakeSource) FetchOwner(_ context.Context, ownerID int) (feed.Owner, error) {
	f.enter()
	defer f.leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.OwnerCalls[ownerID]++

	if f.FailOwner[ownerID] {
		return feed.Owner{}, &source.TransportError{
			Operation: source.OpFetchOwner,
			URL:       "fake://owner",
			Class:     source.ErrorClassNetwork,
			Err:       ErrInjected,
		}
	}
	owner, ok := f.Owners[ownerID]
	if !ok {
		return feed.Owner{}, &source.NotFoundError{Resource: source.ResourceOwner, ID: ownerID}
	}
	return owner, nil
}

// SetFailPage toggles page failures.
func (f *FakeSource) SetFailPage(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailPage = fail
}

// PageCallsSnapshot returns the cursors requested so far.
func (f *FakeSource) PageCallsSnapshot() []feed.Cursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]feed.Cursor(nil), f.PageCalls...)
}

// OwnerCallCount returns how often ownerID was fetched.
func (f *FakeSource) OwnerCallCount(ownerID int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.OwnerCalls[ownerID]
}

// TotalOwnerCalls returns the number of owner fetches across all ids.
func (f *FakeSource) TotalOwnerCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.OwnerCalls {
		total += n
	}
	return total
}

// MaxInFlight returns the highest number of concurrent dependent fetches observed.
func (f *FakeSource) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

func (f *FakeSource) enter() {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.Delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
}

func (f *FakeSource) leave() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}
