package scorecheck

import (
	"container/ring"
	"strings"
	"sync"
	"time"
)

const (
	maxSubjectLen = 60
	maxExcerptLen = 80
)

// Entry is a single history record, kept for the lifetime of the process only.
type Entry struct {
	Time        time.Time `json:"time"`
	Spam        bool      `json:"spam"`
	Probability float64   `json:"probability"`
	Subject     string    `json:"subject"` // truncated
	Excerpt     string    `json:"excerpt"` // truncated body with newlines flattened
}

// NewEntry makes a history entry from a request and its result,
// truncating subject and body excerpt.
func NewEntry(req Request, res Result, now time.Time) Entry {
	return Entry{
		Time:        now,
		Spam:        res.Spam,
		Probability: res.Probability,
		Subject:     truncate(req.Subject, maxSubjectLen),
		Excerpt:     truncate(strings.ReplaceAll(req.Body, "\n", " "), maxExcerptLen),
	}
}

// History keeps track of last N checks, thread-safe.
type History struct {
	entries *ring.Ring
	size    int
	lock    sync.RWMutex
}

// NewHistory creates a bounded history tracker.
func NewHistory(size int) *History {
	// minimum size is 1
	if size < 1 {
		size = 1
	}
	return &History{
		entries: ring.New(size),
		size:    size,
	}
}

// Push adds a new entry to the history.
func (h *History) Push(e Entry) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.entries.Value = e
	h.entries = h.entries.Next()
}

// Last returns up to n last entries, newest first.
func (h *History) Last(n int) []Entry {
	if n < 1 {
		return []Entry{}
	}

	h.lock.RLock()
	defer h.lock.RUnlock()

	if n > h.size {
		n = h.size
	}

	collected := make([]Entry, 0, h.size)
	h.entries.Do(func(v interface{}) {
		if v != nil {
			if e, ok := v.(Entry); ok {
				collected = append(collected, e)
			}
		}
	})

	// ring iterates oldest to newest, reverse for newest-first order
	result := make([]Entry, 0, n)
	for i := len(collected) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, collected[i])
	}
	return result
}

// Size returns the capacity of the history.
func (h *History) Size() int { return h.size }

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
