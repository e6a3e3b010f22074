package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"backend-runtracker/internal/profile"
	"backend-runtracker/internal/runs"
	"backend-runtracker/internal/tracker"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRuns upserts on client id like the postgres store.
type fakeRuns struct {
	mu    sync.Mutex
	err   error
	best  runs.Run
	saved []tracker.FinishedRun
	calls int
	// lostReplies commits this many saves and then reports an error anyway.
	lostReplies int
	// gate, when set, holds every save after it has been committed.
	gate chan struct{}
}

func (f *fakeRuns) SaveFinished(_ context.Context, userID string, fin tracker.FinishedRun) (runs.Run, error) {
	f.mu.Lock()
	f.calls++
	if f.err != nil {
		f.mu.Unlock()
		return runs.Run{}, f.err
	}
	inserted := true
	for _, r := range f.saved {
		if r.ClientID == fin.ClientID {
			inserted = false
		}
	}
	if inserted {
		f.saved = append(f.saved, fin)
	}
	lost := f.lostReplies > 0
	if lost {
		f.lostReplies--
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if lost {
		return runs.Run{}, errors.New("connection reset")
	}
	return runs.Run{ID: "run-" + fin.ClientID, UserID: userID, ClientID: fin.ClientID, Distance: fin.Distance, Pace: fin.Pace, Inserted: inserted}, nil
}

func (f *fakeRuns) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRuns) Best(context.Context, string) (runs.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.best.ID == "" {
		return runs.Run{}, runs.ErrNoBestRun
	}
	return f.best, nil
}

func (f *fakeRuns) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeRuns) Saved() []tracker.FinishedRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tracker.FinishedRun(nil), f.saved...)
}

type fakeProfiles struct {
	mu      sync.Mutex
	weight  float64
	worn    bool
	noShoe  bool
	mileage float64
	lookups int
}

func (f *fakeProfiles) Mileage() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mileage
}

func (f *fakeProfiles) Weight(context.Context, string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.weight, nil
}

func (f *fakeProfiles) AddShoeMileage(_ context.Context, userID string, km float64) (profile.Shoe, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noShoe {
		return profile.Shoe{}, false, profile.ErrNoActiveShoe
	}
	f.mileage += km
	return profile.Shoe{UserID: userID, Name: "Pegasus", DistanceKm: f.mileage, TargetKm: 800}, f.worn, nil
}

type recordedEvent struct {
	userID string
	event  Event
}

type fakeHub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (h *fakeHub) BroadcastJSON(userID string, v any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, recordedEvent{userID: userID, event: v.(Event)})
	return nil
}

func (h *fakeHub) Events(typ string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, e := range h.events {
		if e.event.Type == typ {
			out = append(out, e.event)
		}
	}
	return out
}

func (h *fakeHub) HasCue(text string) bool {
	for _, e := range h.Events(EventCue) {
		if e.Text == text {
			return true
		}
	}
	return false
}

type managerHarness struct {
	m        *Manager
	sched    *tracker.ManualScheduler
	runs     *fakeRuns
	profiles *fakeProfiles
	hub      *fakeHub
}

func newManagerHarness(t *testing.T) *managerHarness {
	t.Helper()
	h := &managerHarness{
		sched:    tracker.NewManualScheduler(),
		runs:     &fakeRuns{},
		profiles: &fakeProfiles{weight: 80},
		hub:      &fakeHub{},
	}
	log := zerolog.Nop()
	cfg := DefaultConfig()
	cfg.BreakerFailures = 2
	h.m = NewManager(Deps{
		Config:    cfg,
		Runs:      h.runs,
		Profiles:  h.profiles,
		Hub:       h.hub,
		Scheduler: h.sched,
		Logger:    &log,
	})
	t.Cleanup(h.m.Close)
	return h
}

func (h *managerHarness) running(t *testing.T, userID string) {
	t.Helper()
	_, err := h.m.Start(context.Background(), userID, 0)
	require.NoError(t, err)
	h.sched.Advance(3 * time.Second)
	require.Equal(t, tracker.StatusRunning, h.m.Snapshot(userID).Status)
}

func jogFix(tsMs int64) tracker.Fix {
	speed := 3.0
	return tracker.Fix{Lat: -6.2, Lng: 106.8 + float64(tsMs)/1e8, Speed: &speed, AccuracyM: 5, TimestampMs: tsMs}
}

func TestManagerRunLifecycle(t *testing.T) {
	h := newManagerHarness(t)
	ctx := context.Background()
	h.running(t, "user-1")

	fixes := make([]tracker.Fix, 0, 11)
	for i := int64(0); i <= 10; i++ {
		fixes = append(fixes, jogFix(1000+i*1000))
	}
	snap, delivered := h.m.PushFixes("user-1", fixes)
	assert.Equal(t, 11, delivered)
	assert.InDelta(t, 0.03, snap.DistanceKm, 1e-9)
	h.sched.Advance(10 * time.Second)

	run, err := h.m.Stop(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 10, run.Time)
	assert.Equal(t, 0.03, run.Distance)
	assert.Empty(t, h.m.Pending("user-1"))
	assert.Equal(t, tracker.StatusIdle, h.m.Snapshot("user-1").Status)

	saved := h.runs.Saved()
	require.Len(t, saved, 1)
	assert.Equal(t, run.ClientID, saved[0].ClientID)
	assert.Len(t, h.hub.Events(EventRunSaved), 1)
	assert.InDelta(t, 0.03, h.profiles.mileage, 1e-9)

	for _, ev := range h.hub.Events(EventSnapshot) {
		assert.Nil(t, ev.Snapshot.Path)
	}
}

func TestManagerUsesProfileWeight(t *testing.T) {
	h := newManagerHarness(t)
	h.running(t, "user-1")
	assert.Equal(t, 1, h.profiles.lookups)

	h.m.PushFixes("user-1", []tracker.Fix{jogFix(1000), jogFix(2000)})
	// 3 m/s is MET 9.8 at 80 kg for one second.
	assert.InDelta(t, 9.8*80/3600, h.m.Snapshot("user-1").CaloriesKcal, 1e-9)
}

func TestManagerWornShoeCue(t *testing.T) {
	h := newManagerHarness(t)
	h.profiles.worn = true
	h.running(t, "user-1")
	h.m.PushFixes("user-1", []tracker.Fix{jogFix(1000), jogFix(2000)})

	_, err := h.m.Stop(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return h.hub.HasCue(tracker.CueShoesWorn) }, time.Second, 5*time.Millisecond)
}

func TestManagerNoActiveShoe(t *testing.T) {
	h := newManagerHarness(t)
	h.profiles.noShoe = true
	h.running(t, "user-1")
	h.m.PushFixes("user-1", []tracker.Fix{jogFix(1000), jogFix(2000)})

	_, err := h.m.Stop(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, h.runs.Saved(), 1)
}

func TestManagerNoSession(t *testing.T) {
	h := newManagerHarness(t)
	ctx := context.Background()

	_, err := h.m.Pause("user-9")
	assert.ErrorIs(t, err, tracker.ErrInvalidTransition)
	_, err = h.m.Cancel("user-9")
	assert.ErrorIs(t, err, tracker.ErrInvalidTransition)
	_, err = h.m.Stop(ctx, "user-9")
	assert.ErrorIs(t, err, tracker.ErrInvalidTransition)

	snap := h.m.Snapshot("user-9")
	assert.Equal(t, tracker.StatusIdle, snap.Status)
	assert.Empty(t, h.m.Pending("user-9"))
	n, err := h.m.RetryPending(ctx, "user-9")
	assert.NoError(t, err)
	assert.Zero(t, n)
	_, ok := h.m.Ghost("user-9")
	assert.False(t, ok)
}

func TestManagerIgnoresFixesWhileIdle(t *testing.T) {
	h := newManagerHarness(t)

	snap, delivered := h.m.PushFixes("user-1", []tracker.Fix{jogFix(1000)})
	assert.Zero(t, delivered)
	assert.Nil(t, snap.LastFix)
}

func TestManagerSessionsAreIndependent(t *testing.T) {
	h := newManagerHarness(t)
	h.running(t, "user-1")

	_, err := h.m.Start(context.Background(), "user-2", 0)
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusStarting, h.m.Snapshot("user-2").Status)
	assert.Equal(t, tracker.StatusRunning, h.m.Snapshot("user-1").Status)

	_, err = h.m.Cancel("user-2")
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusRunning, h.m.Snapshot("user-1").Status)
}

func TestManagerPendingAndBreaker(t *testing.T) {
	h := newManagerHarness(t)
	ctx := context.Background()
	h.runs.setErr(errors.New("db down"))
	h.running(t, "user-1")

	_, err := h.m.Stop(ctx, "user-1")
	require.Error(t, err)
	require.Len(t, h.m.Pending("user-1"), 1)

	_, err = h.m.RetryPending(ctx, "user-1")
	require.Error(t, err)
	assert.Equal(t, gobreaker.StateOpen, h.m.breaker.State())

	_, err = h.m.RetryPending(ctx, "user-1")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, h.m.Pending("user-1"), 1)
	assert.Empty(t, h.runs.Saved())
}

func TestManagerRetryPendingSucceeds(t *testing.T) {
	h := newManagerHarness(t)
	ctx := context.Background()
	h.runs.setErr(errors.New("db down"))
	h.running(t, "user-1")

	run, err := h.m.Stop(ctx, "user-1")
	require.Error(t, err)

	h.runs.setErr(nil)
	n, err := h.m.RetryPending(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, h.m.Pending("user-1"))
	require.Len(t, h.runs.Saved(), 1)
	assert.Equal(t, run.ClientID, h.runs.Saved()[0].ClientID)
}

// jog runs user-1 for 20 one-second fixes at 3 m/s (0.06 km).
func (h *managerHarness) jog(t *testing.T) {
	t.Helper()
	h.running(t, "user-1")
	fixes := make([]tracker.Fix, 0, 21)
	for i := int64(0); i <= 20; i++ {
		fixes = append(fixes, jogFix(1000+i*1000))
	}
	h.m.PushFixes("user-1", fixes)
	h.sched.Advance(20 * time.Second)
}

func TestManagerRetryRacingStopAddsMileageOnce(t *testing.T) {
	h := newManagerHarness(t)
	ctx := context.Background()
	h.runs.gate = make(chan struct{})
	h.jog(t)

	var wg sync.WaitGroup
	var run tracker.FinishedRun
	var stopErr, retryErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		run, stopErr = h.m.Stop(ctx, "user-1")
	}()
	require.Eventually(t, func() bool { return h.runs.Calls() == 1 }, time.Second, time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, retryErr = h.m.RetryPending(ctx, "user-1")
	}()
	require.Eventually(t, func() bool { return h.runs.Calls() == 2 }, time.Second, time.Millisecond)
	close(h.runs.gate)
	wg.Wait()

	require.NoError(t, stopErr)
	require.NoError(t, retryErr)
	assert.Equal(t, 0.06, run.Distance)
	assert.Len(t, h.runs.Saved(), 1)
	assert.InDelta(t, 0.06, h.profiles.Mileage(), 1e-9)
	assert.Len(t, h.hub.Events(EventRunSaved), 1)
}

func TestManagerRetryAfterLostReplyAddsMileageOnce(t *testing.T) {
	h := newManagerHarness(t)
	ctx := context.Background()
	h.runs.lostReplies = 1
	h.jog(t)

	_, err := h.m.Stop(ctx, "user-1")
	require.Error(t, err)
	require.Len(t, h.runs.Saved(), 1)
	assert.Zero(t, h.profiles.Mileage())

	n, err := h.m.RetryPending(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, h.runs.Saved(), 1)
	assert.InDelta(t, 0.06, h.profiles.Mileage(), 1e-9)
	assert.Empty(t, h.m.Pending("user-1"))
}

func TestManagerEvictsIdleSessions(t *testing.T) {
	h := newManagerHarness(t)
	ctx := context.Background()

	h.m.PushFixes("user-1", []tracker.Fix{jogFix(1000)})
	h.m.Snapshot("user-1")
	assert.Zero(t, h.m.Sessions())

	_, err := h.m.Start(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, h.m.Sessions())
	_, err = h.m.Cancel("user-1")
	require.NoError(t, err)
	assert.Zero(t, h.m.Sessions())

	h.running(t, "user-1")
	_, err = h.m.Stop(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, h.m.Sessions())
}

func TestManagerKeepsSessionWithPendingRun(t *testing.T) {
	h := newManagerHarness(t)
	ctx := context.Background()
	h.runs.setErr(errors.New("db down"))
	h.running(t, "user-1")

	_, err := h.m.Stop(ctx, "user-1")
	require.Error(t, err)
	assert.Equal(t, 1, h.m.Sessions())

	h.runs.setErr(nil)
	_, err = h.m.RetryPending(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, h.m.Sessions())
}

func TestManagerMutePreferenceOutlivesSession(t *testing.T) {
	h := newManagerHarness(t)
	ctx := context.Background()
	h.m.SetMuted("user-1", true)
	assert.Zero(t, h.m.Sessions())

	_, err := h.m.Start(ctx, "user-1", 0)
	require.NoError(t, err)
	_, err = h.m.Cancel("user-1")
	require.NoError(t, err)
	assert.Zero(t, h.m.Sessions())

	_, err = h.m.Start(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, h.hub.Events(EventCue))
}

func TestManagerStartAgainstBest(t *testing.T) {
	h := newManagerHarness(t)
	ctx := context.Background()

	_, _, err := h.m.StartAgainstBest(ctx, "user-1")
	assert.ErrorIs(t, err, runs.ErrNoBestRun)

	h.runs.best = runs.Run{ID: "run-1", PaceSeconds: 360}
	snap, best, err := h.m.StartAgainstBest(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", best.ID)
	require.NotNil(t, snap.Ghost)
	assert.Equal(t, 6.0, snap.Ghost.TargetPaceMinPerKm)

	h.sched.Advance(3 * time.Second)
	h.m.PushFixes("user-1", []tracker.Fix{jogFix(1000), jogFix(2000), jogFix(3000)})
	h.sched.Advance(60 * time.Second)
	pos, ok := h.m.Ghost("user-1")
	require.True(t, ok)
	assert.InDelta(t, 1.0/6, pos.GhostDistanceKm, 1e-9)
	assert.False(t, pos.Ahead)
}

func TestManagerMutedVoice(t *testing.T) {
	h := newManagerHarness(t)
	h.m.SetMuted("user-1", true)

	_, err := h.m.Start(context.Background(), "user-1", 0)
	require.NoError(t, err)
	h.sched.Advance(3 * time.Second)
	assert.Empty(t, h.hub.Events(EventCue))
}

func TestManagerWithoutStores(t *testing.T) {
	sched := tracker.NewManualScheduler()
	m := NewManager(Deps{Scheduler: sched})
	t.Cleanup(m.Close)
	ctx := context.Background()

	_, err := m.Start(ctx, "user-1", 0)
	require.NoError(t, err)
	sched.Advance(3 * time.Second)

	_, err = m.Stop(ctx, "user-1")
	assert.ErrorIs(t, err, tracker.ErrNoSubmitter)
	assert.Len(t, m.Pending("user-1"), 1)

	_, _, err = m.StartAgainstBest(ctx, "user-1")
	assert.ErrorIs(t, err, runs.ErrNoBestRun)
}
