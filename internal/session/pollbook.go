package session

import "sync"

// pollBook remembers the options of polls we have sent, keyed by message ID.
// Vote updates carry only SHA256 hashes of the chosen option names, so the
// original names must be kept around to decode them. The book is bounded;
// oldest entries are evicted first.
type pollBook struct {
	mu    sync.Mutex
	byID  map[string][]string
	order []string
	cap   int
}

func newPollBook(capacity int) *pollBook {
	if capacity <= 0 {
		capacity = 256
	}
	return &pollBook{
		byID: make(map[string][]string),
		cap:  capacity,
	}
}

func (b *pollBook) Remember(messageID string, options []string) {
	if messageID == "" || len(options) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.byID[messageID]; !exists {
		b.order = append(b.order, messageID)
	}
	b.byID[messageID] = append([]string(nil), options...)
	for len(b.order) > b.cap {
		oldest := b.order[0]
		b.order = b.order[1:]
		delete(b.byID, oldest)
	}
}

func (b *pollBook) Lookup(messageID string) ([]string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	opts, ok := b.byID[messageID]
	return opts, ok
}
