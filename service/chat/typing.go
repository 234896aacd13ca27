package chat

import (
	"sort"
	"sync"
	"time"
)

// TypingConf tunes the two typing clocks.
type TypingConf struct {
	// Debounce is the idle gap after which the local "stop typing" fires.
	Debounce time.Duration // default 2s
	// RemoteMaxAge evicts remote entries whose "stop typing" never arrived
	// (dropped on a disconnect, for instance).
	RemoteMaxAge time.Duration // default 10s
	Clock        func() time.Time
}

func (c *TypingConf) norm() {
	if c.Debounce <= 0 {
		c.Debounce = 2 * time.Second
	}
	if c.RemoteMaxAge <= 0 {
		c.RemoteMaxAge = 10 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// TypingCoordinator runs two independent clocks. The local one debounces
// the current user's edits: the first edit emits "typing" and arms a
// single-shot timer; every further edit rearms it; expiry emits "stop
// typing". The remote side maps username to last-seen time, fed by
// "user typing"/"user stop typing" events, with a defensive max-age
// eviction pass.
type TypingCoordinator struct {
	conf TypingConf
	self string // own username, never shown in the remote set

	emitStart func() // fires "typing" for the active room
	emitStop  func() // fires "stop typing" for the active room
	onIdle    func() // re-enters the actor queue when the debounce expires

	mu     sync.RWMutex
	typing bool
	timer  *time.Timer
	remote map[string]time.Time
}

func NewTypingCoordinator(conf TypingConf, self string, emitStart, emitStop, onIdle func()) *TypingCoordinator {
	conf.norm()
	return &TypingCoordinator{
		conf:      conf,
		self:      self,
		emitStart: emitStart,
		emitStop:  emitStop,
		onIdle:    onIdle,
		remote:    make(map[string]time.Time),
	}
}

// InputActivity is the per-edit hook. Emits at most one "typing" burst per
// idle gap, not one per keystroke.
func (t *TypingCoordinator) InputActivity() {
	t.mu.Lock()
	wasTyping := t.typing
	t.typing = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.conf.Debounce, t.onIdle)
	t.mu.Unlock()

	if !wasTyping {
		t.emitStart()
	}
}

// StopLocal ends the local typing burst, emitting "stop typing" if one was
// active. Called from the actor when the debounce expires or a message is
// sent.
func (t *TypingCoordinator) StopLocal() {
	t.mu.Lock()
	wasTyping := t.typing
	t.typing = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	if wasTyping {
		t.emitStop()
	}
}

func (t *TypingCoordinator) LocalTyping() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.typing
}

// RemoteStart adds/refreshes a remote typist. The protocol keys typing by
// username; our own name is filtered so the UI renders "you are typing"
// from the local flag only.
func (t *TypingCoordinator) RemoteStart(username string) {
	if username == "" || username == t.self {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remote[username] = t.conf.Clock()
}

// RemoteStop removes a remote typist. Absent entries are a no-op.
func (t *TypingCoordinator) RemoteStop(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.remote, username)
}

// Evict drops remote entries older than RemoteMaxAge so a dropped stop
// event cannot leave a permanently stuck indicator. Returns how many were
// evicted.
func (t *TypingCoordinator) Evict() int {
	cutoff := t.conf.Clock().Add(-t.conf.RemoteMaxAge)
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for name, seen := range t.remote {
		if seen.Before(cutoff) {
			delete(t.remote, name)
			n++
		}
	}
	return n
}

// Typing returns the remote typists, sorted.
func (t *TypingCoordinator) Typing() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.remote))
	for name := range t.remote {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Reset cancels the debounce timer and clears all state without emitting.
// Used on room switch and session stop, where the leave intent already
// covers the server side.
func (t *TypingCoordinator) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.typing = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.remote = make(map[string]time.Time)
}
