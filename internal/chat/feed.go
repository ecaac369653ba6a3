package chat

import (
	"sync"

	"github.com/mosaicchat/mosaic/internal/models"
)

// feed fans message inserts out to in-process subscribers, keyed by
// conversation id. Callbacks run synchronously on the publisher's goroutine,
// so they must not block; Session copies the row and returns immediately.
type feed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(models.Message)
	all    map[int]func(models.Message)
}

func newFeed() *feed {
	return &feed{
		subs: make(map[string]map[int]func(models.Message)),
		all:  make(map[int]func(models.Message)),
	}
}

func (f *feed) subscribe(conversationID string, fn func(models.Message)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	if f.subs[conversationID] == nil {
		f.subs[conversationID] = make(map[int]func(models.Message))
	}
	f.subs[conversationID][id] = fn

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs[conversationID], id)
		if len(f.subs[conversationID]) == 0 {
			delete(f.subs, conversationID)
		}
	}
}

// subscribeAll registers fn for inserts across every conversation.
func (f *feed) subscribeAll(fn func(models.Message)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.all[id] = fn

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.all, id)
	}
}

func (f *feed) publish(m models.Message) {
	f.mu.RLock()
	fns := make([]func(models.Message), 0, len(f.subs[m.ConversationID])+len(f.all))
	for _, fn := range f.subs[m.ConversationID] {
		fns = append(fns, fn)
	}
	for _, fn := range f.all {
		fns = append(fns, fn)
	}
	f.mu.RUnlock()

	for _, fn := range fns {
		fn(m)
	}
}
