package matchmaking

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playgrid/backend/internal/config"
)

var (
	ErrAlreadyQueued = errors.New("player already in queue")
	ErrNotQueued     = errors.New("player not in queue")
	ErrSamePlayer    = errors.New("cannot match a player with themselves")
)

// Player is a waiting player's matchmaking record.
type Player struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	Level      int       `json:"level"`
	ConnID     string    `json:"-"`
	Quick      bool      `json:"-"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// MatchResult is the output of a successful pairing. It is consumed
// immediately to create a game room.
type MatchResult struct {
	RoomID  string
	A, B    Player
	Quality int // absolute level difference; lower is better
}

// userTimers tracks every live timer for one queued user so all of them can
// be cancelled together on any exit path.
type userTimers struct {
	pairTicker *time.Ticker
	stop       chan struct{}
	maxWait    *time.Timer
}

// Engine owns the matchmaking queue. Pairing is a compatibility scan over the
// queue in wait-time order; the skill tolerance relaxes as wait time grows so
// no player waits indefinitely.
type Engine struct {
	cfg *config.Config

	mu     sync.Mutex
	queue  []*Player // enqueue order == wait-time order
	byUser map[string]*Player
	timers map[string]*userTimers
	recent []time.Time // completed-match timestamps for the pairing-rate window

	// alive reports whether a connection is still registered; used by Cleanup
	alive func(connID string) bool

	onMatch   func(MatchResult)
	onTimeout func(Player)
}

func New(cfg *config.Config, alive func(connID string) bool) *Engine {
	return &Engine{
		cfg:    cfg,
		byUser: make(map[string]*Player),
		timers: make(map[string]*userTimers),
		alive:  alive,
	}
}

// OnMatch registers the callback invoked with every successful pairing.
func (e *Engine) OnMatch(fn func(MatchResult)) { e.onMatch = fn }

// OnTimeout registers the callback invoked when a player exceeds the max wait.
func (e *Engine) OnTimeout(fn func(Player)) { e.onTimeout = fn }

// Enqueue inserts the player and attempts an immediate pairing pass. If no
// match is found, a recurring pairing check and a hard max-wait timer are
// scheduled for the player.
func (e *Engine) Enqueue(p Player) error {
	e.mu.Lock()
	if _, exists := e.byUser[p.UserID]; exists {
		e.mu.Unlock()
		return ErrAlreadyQueued
	}

	p.EnqueuedAt = time.Now()
	entry := &p
	e.queue = append(e.queue, entry)
	e.byUser[p.UserID] = entry

	result := e.tryPairLocked(p.UserID)
	if result == nil {
		e.scheduleLocked(p.UserID)
	}
	e.mu.Unlock()

	log.Printf("[MATCHMAKER] Queued user=%s level=%d quick=%v", p.UserID, p.Level, p.Quick)

	if result != nil {
		e.emitMatch(*result)
	}
	return nil
}

// TryPair runs one pairing pass for the given queued user and returns the
// match, if any. The pass scans the rest of the queue in wait-time order and
// takes the first mutually-compatible candidate.
func (e *Engine) TryPair(userID string) *MatchResult {
	e.mu.Lock()
	result := e.tryPairLocked(userID)
	e.mu.Unlock()

	if result != nil {
		e.emitMatch(*result)
	}
	return result
}

func (e *Engine) tryPairLocked(userID string) *MatchResult {
	me, ok := e.byUser[userID]
	if !ok {
		return nil
	}

	now := time.Now()
	myTol := e.tolerance(me, now)
	for _, other := range e.queue {
		if other.UserID == me.UserID {
			continue
		}
		diff := me.Level - other.Level
		if diff < 0 {
			diff = -diff
		}
		// Mutual compatibility: both tolerances must cover the gap
		if diff <= myTol && diff <= e.tolerance(other, now) {
			return e.completeMatchLocked(me, other, diff)
		}
	}
	return nil
}

// tolerance widens by one step per elapsed widen interval, capped at max.
// Quick-match players use the maximum immediately.
func (e *Engine) tolerance(p *Player, now time.Time) int {
	if p.Quick {
		return e.cfg.SkillToleranceMax
	}
	waited := now.Sub(p.EnqueuedAt)
	steps := int(waited / (time.Duration(e.cfg.ToleranceWidenSecs) * time.Second))
	tol := e.cfg.SkillToleranceBase + steps*e.cfg.SkillToleranceStep
	if tol > e.cfg.SkillToleranceMax {
		tol = e.cfg.SkillToleranceMax
	}
	return tol
}

func (e *Engine) completeMatchLocked(a, b *Player, quality int) *MatchResult {
	e.removeLocked(a.UserID)
	e.removeLocked(b.UserID)
	e.recent = append(e.pruneRecentLocked(), time.Now())

	result := &MatchResult{
		RoomID:  "room_" + uuid.NewString(),
		A:       *a,
		B:       *b,
		Quality: quality,
	}
	log.Printf("[MATCHMAKER] Match created: room=%s users=[%s,%s] quality=%d",
		result.RoomID, a.UserID, b.UserID, quality)
	return result
}

func (e *Engine) emitMatch(result MatchResult) {
	if e.onMatch != nil {
		e.onMatch(result)
	}
}

// Cancel removes the user from the queue. Cancelling a user who is not
// queued is a no-op.
func (e *Engine) Cancel(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.byUser[userID]; !ok {
		return false
	}
	e.removeLocked(userID)
	log.Printf("[MATCHMAKER] Cancelled user=%s", userID)
	return true
}

// removeLocked drops the entry and cancels every timer tracked for the user.
func (e *Engine) removeLocked(userID string) {
	if _, ok := e.byUser[userID]; !ok {
		return
	}
	delete(e.byUser, userID)
	for i, p := range e.queue {
		if p.UserID == userID {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			break
		}
	}
	e.clearTimersLocked(userID)
}

func (e *Engine) clearTimersLocked(userID string) {
	t, ok := e.timers[userID]
	if !ok {
		return
	}
	delete(e.timers, userID)
	t.pairTicker.Stop()
	close(t.stop)
	t.maxWait.Stop()
}

// scheduleLocked starts the recurring pairing check and the max-wait timer
// for a queued user. Both handles are tracked so they can be cancelled
// together whenever the user leaves the queue by any path.
func (e *Engine) scheduleLocked(userID string) {
	interval := time.Duration(e.cfg.PairingIntervalSecs) * time.Second
	maxWait := time.Duration(e.cfg.MaxQueueWaitSecs) * time.Second

	t := &userTimers{
		pairTicker: time.NewTicker(interval),
		stop:       make(chan struct{}),
	}
	t.maxWait = time.AfterFunc(maxWait, func() { e.expire(userID) })
	e.timers[userID] = t

	go func() {
		for {
			select {
			case <-t.stop:
				return
			case <-t.pairTicker.C:
				e.TryPair(userID)
			}
		}
	}()
}

// expire handles the hard wait ceiling: the player is dequeued and notified.
func (e *Engine) expire(userID string) {
	e.mu.Lock()
	p, ok := e.byUser[userID]
	if !ok {
		e.mu.Unlock()
		return
	}
	snapshot := *p
	e.removeLocked(userID)
	e.mu.Unlock()

	log.Printf("[MATCHMAKER] Max wait exceeded for user=%s (waited %v)", userID, time.Since(snapshot.EnqueuedAt))
	if e.onTimeout != nil {
		e.onTimeout(snapshot)
	}
}

// Position returns the 1-based queue position of the user, or 0 if absent.
func (e *Engine) Position(userID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, p := range e.queue {
		if p.UserID == userID {
			return i + 1
		}
	}
	return 0
}

// EstimatedWait derives a wait estimate from the current queue depth and the
// pairing rate over the recent rolling window, floored at one pairing
// interval.
func (e *Engine) EstimatedWait(userID string) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	ahead := 0
	for i, p := range e.queue {
		if p.UserID == userID {
			ahead = i
			break
		}
	}

	window := time.Duration(e.cfg.PairingRateWindowMin) * time.Minute
	matches := len(e.pruneRecentLocked())
	if matches < 1 {
		matches = 1
	}
	perMatch := window / time.Duration(matches)

	est := time.Duration(ahead/2+1) * perMatch
	floor := time.Duration(e.cfg.PairingIntervalSecs) * time.Second
	if est < floor {
		est = floor
	}
	if max := time.Duration(e.cfg.MaxQueueWaitSecs) * time.Second; est > max {
		est = max
	}
	return est
}

func (e *Engine) pruneRecentLocked() []time.Time {
	cutoff := time.Now().Add(-time.Duration(e.cfg.PairingRateWindowMin) * time.Minute)
	kept := e.recent[:0]
	for _, t := range e.recent {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.recent = kept
	return kept
}

// ForceMatch pairs two specific queued users regardless of compatibility.
// Administrative bypass.
func (e *Engine) ForceMatch(userIDA, userIDB string) (*MatchResult, error) {
	if userIDA == userIDB {
		return nil, ErrSamePlayer
	}

	e.mu.Lock()
	a, okA := e.byUser[userIDA]
	b, okB := e.byUser[userIDB]
	if !okA || !okB {
		e.mu.Unlock()
		return nil, ErrNotQueued
	}
	diff := a.Level - b.Level
	if diff < 0 {
		diff = -diff
	}
	result := e.completeMatchLocked(a, b, diff)
	e.mu.Unlock()

	e.emitMatch(*result)
	return result, nil
}

// Cleanup purges queue entries whose connection is no longer registered
// (stale entries left by ungraceful disconnects). Returns the purge count.
func (e *Engine) Cleanup() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	var stale []string
	for _, p := range e.queue {
		if e.alive != nil && !e.alive(p.ConnID) {
			stale = append(stale, p.UserID)
		}
	}
	for _, userID := range stale {
		e.removeLocked(userID)
	}
	if len(stale) > 0 {
		log.Printf("[MATCHMAKER] Purged %d stale queue entries", len(stale))
	}
	return len(stale)
}

// Depth returns the current queue length.
func (e *Engine) Depth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Snapshot returns a copy of the current queue in wait-time order.
func (e *Engine) Snapshot() []Player {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Player, 0, len(e.queue))
	for _, p := range e.queue {
		out = append(out, *p)
	}
	return out
}
