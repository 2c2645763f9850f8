package wa

import (
	"sync"

	"go.mau.fi/whatsmeow/types/events"
)

// recentMessages keeps the last n media-bearing message events by id so an
// attachment can be fetched again by message id alone.
type recentMessages struct {
	mu    sync.Mutex
	max   int
	byID  map[string]*events.Message
	order []string
}

func newRecentMessages(max int) *recentMessages {
	return &recentMessages{max: max, byID: make(map[string]*events.Message)}
}

func (r *recentMessages) put(evt *events.Message) {
	if _, _, ok := downloadableOf(evt.Message); !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[evt.Info.ID]; !exists {
		r.order = append(r.order, evt.Info.ID)
	}
	r.byID[evt.Info.ID] = evt
	for len(r.order) > r.max {
		delete(r.byID, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *recentMessages) get(id string) (*events.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	evt, ok := r.byID[id]
	return evt, ok
}
