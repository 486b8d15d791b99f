package crawler

import (
	"container/list"
	"context"
	"sync"

	"github.com/amosWeiskopf/docsmith/internal/models"
)

// frontier is the FIFO of pending URLs plus the visited set. Both live under
// one mutex so "is visited" and "mark visited" cannot interleave between
// workers. It also counts in-flight pages so it knows when the crawl is over.
type frontier struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue   *list.List
	queued  map[string]bool
	visited map[string]*models.VisitedRecord
	order   []string

	inflight int
	crawled  int
	limit    int
	done     bool
}

type frontierItem struct {
	entry models.FrontierEntry
	key   string
}

func newFrontier(limit int) *frontier {
	f := &frontier{
		queue:   list.New(),
		queued:  make(map[string]bool),
		visited: make(map[string]*models.VisitedRecord),
		limit:   limit,
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// watch wakes blocked pops when ctx ends. The returned func stops watching.
func (f *frontier) watch(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
}

// push enqueues entry unless key was already visited or queued.
func (f *frontier) push(entry models.FrontierEntry, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done || f.queued[key] || f.visited[key] != nil {
		return false
	}
	f.queued[key] = true
	f.queue.PushBack(frontierItem{entry: entry, key: key})
	f.cond.Signal()
	return true
}

// pop blocks until an entry is available and marks it visited. It returns
// false once the queue is empty with nothing in flight, once the page limit
// is reached, or when ctx is done.
func (f *frontier) pop(ctx context.Context) (frontierItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if f.done || ctx.Err() != nil {
			return frontierItem{}, false
		}
		limited := f.limit > 0 && f.crawled+f.inflight >= f.limit
		switch {
		case limited && f.crawled >= f.limit:
			f.finish()
			return frontierItem{}, false
		case !limited && f.queue.Len() > 0:
			item := f.queue.Remove(f.queue.Front()).(frontierItem)
			delete(f.queued, item.key)
			if f.visited[item.key] != nil {
				continue
			}
			f.visit(item.entry.URL, item.key)
			f.inflight++
			return item, true
		case f.queue.Len() == 0 && f.inflight == 0:
			f.finish()
			return frontierItem{}, false
		}
		f.cond.Wait()
	}
}

func (f *frontier) finish() {
	f.done = true
	f.cond.Broadcast()
}

func (f *frontier) visit(rawURL, key string) {
	f.visited[key] = &models.VisitedRecord{URL: rawURL}
	f.order = append(f.order, key)
}

// claim marks key visited on behalf of an in-flight page, for URLs reached
// through a redirect. It reports false when key was visited already.
func (f *frontier) claim(rawURL, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.visited[key] != nil {
		return false
	}
	f.visit(rawURL, key)
	return true
}

// complete records the outcome of a popped entry. counted pages count toward
// the page limit.
func (f *frontier) complete(key string, outcome models.Outcome, reason string, counted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec := f.visited[key]; rec != nil {
		rec.Outcome = outcome
		rec.Reason = reason
	}
	f.inflight--
	if counted {
		f.crawled++
	}
	f.cond.Broadcast()
}

// annotate sets the outcome of a visited key without touching counters.
func (f *frontier) annotate(key string, outcome models.Outcome, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec := f.visited[key]; rec != nil {
		rec.Outcome = outcome
		rec.Reason = reason
	}
}

// records returns the visited records in visiting order.
func (f *frontier) records() []models.VisitedRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.VisitedRecord, 0, len(f.order))
	for _, key := range f.order {
		out = append(out, *f.visited[key])
	}
	return out
}

// pending reports the number of queued entries.
func (f *frontier) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len()
}

// visitedCount reports the number of canonical URLs taken off the frontier.
func (f *frontier) visitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}
