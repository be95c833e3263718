package matchmaking

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playgrid/backend/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		SkillToleranceBase:   2,
		SkillToleranceStep:   2,
		SkillToleranceMax:    100,
		ToleranceWidenSecs:   10,
		PairingIntervalSecs:  1,
		MaxQueueWaitSecs:     120,
		PairingRateWindowMin: 5,
	}
}

// matchCollector records emitted matches and timeouts.
type matchCollector struct {
	mu       sync.Mutex
	matches  []MatchResult
	timeouts []Player
	matchCh  chan MatchResult
	timeCh   chan Player
}

func newCollector(e *Engine) *matchCollector {
	c := &matchCollector{
		matchCh: make(chan MatchResult, 8),
		timeCh:  make(chan Player, 8),
	}
	e.OnMatch(func(r MatchResult) {
		c.mu.Lock()
		c.matches = append(c.matches, r)
		c.mu.Unlock()
		c.matchCh <- r
	})
	e.OnTimeout(func(p Player) {
		c.mu.Lock()
		c.timeouts = append(c.timeouts, p)
		c.mu.Unlock()
		c.timeCh <- p
	})
	return c
}

func alwaysAlive(string) bool { return true }

func TestEnqueuePairsCompatiblePlayersImmediately(t *testing.T) {
	e := New(testConfig(), alwaysAlive)
	c := newCollector(e)

	require.NoError(t, e.Enqueue(Player{UserID: "u_1", Level: 5, ConnID: "c1"}))
	assert.Equal(t, 1, e.Depth())

	// The second compatible player triggers the match on the same pass
	require.NoError(t, e.Enqueue(Player{UserID: "u_2", Level: 6, ConnID: "c2"}))

	select {
	case result := <-c.matchCh:
		assert.NotEmpty(t, result.RoomID)
		assert.Equal(t, 1, result.Quality)
		ids := []string{result.A.UserID, result.B.UserID}
		assert.ElementsMatch(t, []string{"u_1", "u_2"}, ids)
	case <-time.After(time.Second):
		t.Fatal("no match emitted")
	}

	assert.Equal(t, 0, e.Depth(), "both players should leave the queue")
	assert.Equal(t, 0, e.Position("u_1"))
}

func TestIncompatiblePlayersWait(t *testing.T) {
	cfg := testConfig()
	cfg.SkillToleranceMax = 5 // keep widening from bridging the gap
	e := New(cfg, alwaysAlive)
	c := newCollector(e)

	require.NoError(t, e.Enqueue(Player{UserID: "u_1", Level: 1, ConnID: "c1"}))
	require.NoError(t, e.Enqueue(Player{UserID: "u_2", Level: 50, ConnID: "c2"}))

	select {
	case r := <-c.matchCh:
		t.Fatalf("incompatible players were paired: %+v", r)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 2, e.Depth())
	assert.Equal(t, 1, e.Position("u_1"))
	assert.Equal(t, 2, e.Position("u_2"))
}

func TestQuickMatchIgnoresSkillGap(t *testing.T) {
	cfg := testConfig()
	e := New(cfg, alwaysAlive)
	c := newCollector(e)

	// Level gap far beyond base tolerance, but both asked for quick match
	require.NoError(t, e.Enqueue(Player{UserID: "u_1", Level: 1, ConnID: "c1", Quick: true}))
	require.NoError(t, e.Enqueue(Player{UserID: "u_2", Level: 90, ConnID: "c2", Quick: true}))

	select {
	case result := <-c.matchCh:
		assert.Equal(t, 89, result.Quality)
	case <-time.After(time.Second):
		t.Fatal("quick match did not pair")
	}
}

func TestDuplicateEnqueueRejected(t *testing.T) {
	e := New(testConfig(), alwaysAlive)
	newCollector(e)

	require.NoError(t, e.Enqueue(Player{UserID: "u_1", Level: 5, ConnID: "c1"}))
	err := e.Enqueue(Player{UserID: "u_1", Level: 5, ConnID: "c1"})
	assert.ErrorIs(t, err, ErrAlreadyQueued)
	assert.Equal(t, 1, e.Depth())
}

func TestCancelIsIdempotent(t *testing.T) {
	e := New(testConfig(), alwaysAlive)
	newCollector(e)

	require.NoError(t, e.Enqueue(Player{UserID: "u_1", Level: 5, ConnID: "c1"}))
	assert.True(t, e.Cancel("u_1"))
	assert.False(t, e.Cancel("u_1"), "second cancel is a no-op")
	assert.False(t, e.Cancel("u_never_queued"))
	assert.Equal(t, 0, e.Depth())
}

func TestToleranceWidensWithWaitTime(t *testing.T) {
	cfg := testConfig()
	e := New(cfg, alwaysAlive)

	now := time.Now()
	fresh := &Player{UserID: "u_1", EnqueuedAt: now}
	assert.Equal(t, cfg.SkillToleranceBase, e.tolerance(fresh, now))

	waited := &Player{UserID: "u_2", EnqueuedAt: now.Add(-25 * time.Second)}
	// two widen intervals elapsed
	assert.Equal(t, cfg.SkillToleranceBase+2*cfg.SkillToleranceStep, e.tolerance(waited, now))

	ancient := &Player{UserID: "u_3", EnqueuedAt: now.Add(-24 * time.Hour)}
	assert.Equal(t, cfg.SkillToleranceMax, e.tolerance(ancient, now))

	quick := &Player{UserID: "u_4", Quick: true, EnqueuedAt: now}
	assert.Equal(t, cfg.SkillToleranceMax, e.tolerance(quick, now))
}

func TestMaxWaitTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueWaitSecs = 1
	e := New(cfg, alwaysAlive)
	c := newCollector(e)

	require.NoError(t, e.Enqueue(Player{UserID: "u_1", Level: 5, ConnID: "c1"}))

	select {
	case p := <-c.timeCh:
		assert.Equal(t, "u_1", p.UserID)
	case <-time.After(3 * time.Second):
		t.Fatal("max-wait timeout never fired")
	}
	assert.Equal(t, 0, e.Depth(), "timed-out player should be dequeued")
}

func TestCancelBeforeTimeoutSuppressesIt(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueWaitSecs = 1
	e := New(cfg, alwaysAlive)
	c := newCollector(e)

	require.NoError(t, e.Enqueue(Player{UserID: "u_1", Level: 5, ConnID: "c1"}))
	require.True(t, e.Cancel("u_1"))

	select {
	case p := <-c.timeCh:
		t.Fatalf("timeout fired for cancelled player %s", p.UserID)
	case <-time.After(1500 * time.Millisecond):
	}
}

func TestForceMatch(t *testing.T) {
	cfg := testConfig()
	cfg.SkillToleranceMax = 1 // normal pairing would never take these two
	e := New(cfg, alwaysAlive)
	c := newCollector(e)

	require.NoError(t, e.Enqueue(Player{UserID: "u_1", Level: 1, ConnID: "c1"}))
	require.NoError(t, e.Enqueue(Player{UserID: "u_2", Level: 99, ConnID: "c2"}))

	_, err := e.ForceMatch("u_1", "u_1")
	assert.ErrorIs(t, err, ErrSamePlayer)

	_, err = e.ForceMatch("u_1", "u_not_queued")
	assert.ErrorIs(t, err, ErrNotQueued)

	result, err := e.ForceMatch("u_1", "u_2")
	require.NoError(t, err)
	assert.Equal(t, 98, result.Quality)
	assert.Equal(t, 0, e.Depth())

	select {
	case <-c.matchCh:
	case <-time.After(time.Second):
		t.Fatal("forced match was not emitted")
	}
}

func TestCleanupDropsStaleConnections(t *testing.T) {
	live := map[string]bool{"c1": true, "c2": false}
	cfg := testConfig()
	cfg.SkillToleranceMax = 1
	e := New(cfg, func(connID string) bool { return live[connID] })
	newCollector(e)

	require.NoError(t, e.Enqueue(Player{UserID: "u_1", Level: 1, ConnID: "c1"}))
	require.NoError(t, e.Enqueue(Player{UserID: "u_2", Level: 99, ConnID: "c2"}))

	assert.Equal(t, 1, e.Cleanup())
	assert.Equal(t, 1, e.Depth())
	assert.Equal(t, 1, e.Position("u_1"))
	assert.Equal(t, 0, e.Position("u_2"))
}

func TestEstimatedWait(t *testing.T) {
	cfg := testConfig()
	cfg.SkillToleranceMax = 1
	e := New(cfg, alwaysAlive)
	newCollector(e)

	require.NoError(t, e.Enqueue(Player{UserID: "u_1", Level: 1, ConnID: "c1"}))

	est := e.EstimatedWait("u_1")
	floor := time.Duration(cfg.PairingIntervalSecs) * time.Second
	ceiling := time.Duration(cfg.MaxQueueWaitSecs) * time.Second
	assert.GreaterOrEqual(t, est, floor)
	assert.LessOrEqual(t, est, ceiling)
}

func TestSnapshotPreservesWaitOrder(t *testing.T) {
	cfg := testConfig()
	cfg.SkillToleranceMax = 0
	e := New(cfg, alwaysAlive)
	newCollector(e)

	require.NoError(t, e.Enqueue(Player{UserID: "u_1", Level: 10, ConnID: "c1"}))
	require.NoError(t, e.Enqueue(Player{UserID: "u_2", Level: 20, ConnID: "c2"}))
	require.NoError(t, e.Enqueue(Player{UserID: "u_3", Level: 30, ConnID: "c3"}))

	snap := e.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "u_1", snap[0].UserID)
	assert.Equal(t, "u_3", snap[2].UserID)
}
