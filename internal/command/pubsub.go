package command

import (
	"sync"

	"github.com/alxayo/go-kv/internal/resp"
)

// PubSub is the process-wide channel->subscriber registry PUBLISH fans
// out through. A session's own subscribed-channel set (used for the
// SUBSCRIBE reply's count) is tracked by the Session implementation, not
// here; PubSub only tracks who currently receives a given channel.
type PubSub struct {
	mu   sync.RWMutex
	subs map[string]map[string]Writer
}

func NewPubSub() *PubSub {
	return &PubSub{subs: make(map[string]map[string]Writer)}
}

// Subscribe registers w under id for channel ch.
func (p *PubSub) Subscribe(ch, id string, w Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.subs[ch]
	if !ok {
		m = make(map[string]Writer)
		p.subs[ch] = m
	}
	m[id] = w
}

// Unsubscribe removes id from channel ch's subscriber set.
func (p *PubSub) Unsubscribe(ch, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.subs[ch]
	if !ok {
		return
	}
	delete(m, id)
	if len(m) == 0 {
		delete(p.subs, ch)
	}
}

// Publish writes a ["message", ch, msg] frame to every current subscriber
// of ch, returning the number of subscribers it was delivered to. Writer
// errors are swallowed per connection (a slow/broken subscriber must not
// block or fail the publisher) — matching spec.md §7's "log and continue"
// treatment of fan-out I/O failures.
func (p *PubSub) Publish(ch string, msg []byte) int {
	p.mu.RLock()
	targets := make([]Writer, 0, len(p.subs[ch]))
	for _, w := range p.subs[ch] {
		targets = append(targets, w)
	}
	p.mu.RUnlock()

	delivered := 0
	frame := resp.ArrayValue(resp.BulkValue([]byte("message")), resp.BulkValue([]byte(ch)), resp.BulkValue(msg))
	for _, w := range targets {
		if err := w.Write(frame); err == nil {
			delivered++
		}
	}
	return delivered
}
