package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"backend-runtracker/internal/logging"
	"backend-runtracker/internal/metrics"
	"backend-runtracker/internal/profile"
	"backend-runtracker/internal/runs"
	"backend-runtracker/internal/tracker"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

type Config struct {
	Tracker         tracker.Config
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Tracker:         tracker.DefaultConfig(),
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// RunStore persists finished runs and looks up the ghost reference.
type RunStore interface {
	SaveFinished(ctx context.Context, userID string, run tracker.FinishedRun) (runs.Run, error)
	Best(ctx context.Context, userID string) (runs.Run, error)
}

// ProfileStore supplies body weight and shoe mileage.
type ProfileStore interface {
	Weight(ctx context.Context, userID string) (float64, error)
	AddShoeMileage(ctx context.Context, userID string, km float64) (profile.Shoe, bool, error)
}

type Deps struct {
	Config   Config
	Runs     RunStore
	Profiles ProfileStore
	Hub      Broadcaster
	// Scheduler defaults to wall-clock timers.
	Scheduler tracker.Scheduler
	Logger    *zerolog.Logger
}

// Session is one user's live run.
type Session struct {
	UserID string
	Engine *tracker.Engine
	Feed   *Feed
	Voice  *tracker.Dispatcher

	refs int // in-flight operations, guarded by Manager.mu
}

// Manager hosts one engine per user.
type Manager struct {
	cfg      Config
	runs     RunStore
	profiles ProfileStore
	hub      Broadcaster
	sched    tracker.Scheduler
	log      zerolog.Logger
	breaker  *gobreaker.CircuitBreaker[any]

	mu       sync.Mutex
	sessions map[string]*Session
	// saved holds client ids whose follow-up work already ran.
	saved    map[string]time.Time
	muted    map[string]bool
	now      func() time.Time
}

// savedTTL bounds how long a client id is remembered after a successful save.
// Pending runs are retried well within it.
const savedTTL = time.Hour

type discard struct{}

func (discard) BroadcastJSON(string, any) error { return nil }

func NewManager(deps Deps) *Manager {
	cfg := deps.Config
	if cfg.Tracker == (tracker.Config{}) {
		cfg.Tracker = tracker.DefaultConfig()
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultConfig().BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = DefaultConfig().BreakerTimeout
	}

	m := &Manager{
		cfg:      cfg,
		runs:     deps.Runs,
		profiles: deps.Profiles,
		hub:      deps.Hub,
		sched:    deps.Scheduler,
		sessions: map[string]*Session{},
		saved:    map[string]time.Time{},
		muted:    map[string]bool{},
		now:      time.Now,
	}
	if m.hub == nil {
		m.hub = discard{}
	}
	if m.sched == nil {
		m.sched = tracker.RealScheduler{}
	}
	if deps.Logger != nil {
		m.log = *deps.Logger
	} else {
		m.log = logging.With().Str("component", "live").Logger()
	}
	m.breaker = newBreaker(cfg, m.log)
	return m
}

// acquire returns the user's session with an operation reference held,
// creating it when create is set. Every successful acquire needs a release.
func (m *Manager) acquire(userID string, create bool) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[userID]; ok {
		sess.refs++
		return sess, true
	}
	if !create {
		return nil, false
	}

	log := m.log.With().Str("user_id", userID).Logger()
	sess := &Session{
		UserID: userID,
		Feed:   NewFeed(),
		Voice:  tracker.NewDispatcher(hubVoice{hub: m.hub, userID: userID}, log),
		refs:   1,
	}
	sess.Voice.SetMuted(m.muted[userID])
	var submitter tracker.Submitter
	if m.runs != nil {
		submitter = sessionSubmitter{m: m, userID: userID}
	}
	sess.Engine = tracker.NewEngine(tracker.EngineDeps{
		Config:    m.cfg.Tracker,
		Fixes:     sess.Feed,
		Scheduler: m.sched,
		Announcer: sess.Voice,
		Submitter: submitter,
		Logger:    &log,
		OnUpdate:  func(s tracker.Snapshot) { m.publish(sess, s) },
	})
	m.sessions[userID] = sess
	return sess, true
}

// release drops an operation reference. The last reference on an idle
// session without pending runs evicts it.
func (m *Manager) release(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess.refs--
	if sess.refs > 0 || m.sessions[sess.UserID] != sess {
		return
	}
	if sess.Engine.Status() != tracker.StatusIdle || len(sess.Engine.Pending()) > 0 {
		return
	}
	sess.Engine.Close()
	delete(m.sessions, sess.UserID)
}

// Sessions is the number of users with a live or unsubmitted run.
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) lookup(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[userID]
	return sess, ok
}

// publish forwards an engine update. Updates carry no path; followers fetch
// it from the snapshot endpoint.
func (m *Manager) publish(sess *Session, s tracker.Snapshot) {
	ev := Event{Type: EventSnapshot, Snapshot: &s}
	if g, ok := sess.Engine.Ghost(); ok {
		ev.Ghost = &g
	}
	if err := m.hub.BroadcastJSON(sess.UserID, ev); err != nil {
		m.log.Debug().Err(err).Str("user_id", sess.UserID).Msg("snapshot broadcast failed")
	}
}

func (m *Manager) weight(ctx context.Context, userID string) float64 {
	if m.profiles == nil {
		return 0
	}
	kg, err := m.profiles.Weight(ctx, userID)
	if err != nil {
		m.log.Warn().Err(err).Str("user_id", userID).Msg("weight lookup failed, using default")
		return 0
	}
	return kg
}

// claimSaved reports whether clientID is seen for the first time.
func (m *Manager) claimSaved(clientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, at := range m.saved {
		if now.Sub(at) > savedTTL {
			delete(m.saved, id)
		}
	}
	if _, ok := m.saved[clientID]; ok {
		return false
	}
	m.saved[clientID] = now
	return true
}

func (m *Manager) afterSave(ctx context.Context, userID string, run runs.Run) {
	if err := m.hub.BroadcastJSON(userID, Event{Type: EventRunSaved, Run: &run}); err != nil {
		m.log.Debug().Err(err).Str("user_id", userID).Msg("run broadcast failed")
	}
	if m.profiles == nil || run.Distance <= 0 {
		return
	}

	shoe, worn, err := m.profiles.AddShoeMileage(ctx, userID, run.Distance)
	switch {
	case errors.Is(err, profile.ErrNoActiveShoe):
		return
	case err != nil:
		m.log.Error().Err(err).Str("user_id", userID).Msg("shoe mileage update failed")
		return
	}
	if worn {
		m.log.Info().Str("user_id", userID).Str("shoe", shoe.Name).Float64("distance_km", shoe.DistanceKm).Msg("shoe past mileage target")
		if sess, ok := m.lookup(userID); ok {
			sess.Voice.Announce(tracker.CueShoesWorn)
		}
	}
}

// Start begins the countdown, refreshing the body weight first.
func (m *Manager) Start(ctx context.Context, userID string, ghostPace float64) (tracker.Snapshot, error) {
	sess, _ := m.acquire(userID, true)
	defer m.release(sess)

	if kg := m.weight(ctx, userID); kg > 0 {
		sess.Engine.SetWeightKg(kg)
	}
	if err := sess.Engine.Start(tracker.StartOptions{GhostPace: ghostPace}); err != nil {
		return tracker.Snapshot{}, err
	}
	return sess.Engine.Snapshot(), nil
}

// StartAgainstBest starts a session paced by the user's fastest run.
func (m *Manager) StartAgainstBest(ctx context.Context, userID string) (tracker.Snapshot, runs.Run, error) {
	if m.runs == nil {
		return tracker.Snapshot{}, runs.Run{}, runs.ErrNoBestRun
	}
	best, err := m.runs.Best(ctx, userID)
	if err != nil {
		return tracker.Snapshot{}, runs.Run{}, err
	}
	snap, err := m.Start(ctx, userID, float64(best.PaceSeconds)/60)
	return snap, best, err
}

func (m *Manager) Pause(userID string) (tracker.Snapshot, error) {
	return m.transition(userID, (*tracker.Engine).Pause)
}

func (m *Manager) Resume(userID string) (tracker.Snapshot, error) {
	return m.transition(userID, (*tracker.Engine).Resume)
}

func (m *Manager) Cancel(userID string) (tracker.Snapshot, error) {
	return m.transition(userID, (*tracker.Engine).Cancel)
}

func (m *Manager) transition(userID string, fn func(*tracker.Engine) error) (tracker.Snapshot, error) {
	sess, ok := m.acquire(userID, false)
	if !ok {
		return tracker.Snapshot{}, tracker.ErrInvalidTransition
	}
	defer m.release(sess)

	if err := fn(sess.Engine); err != nil {
		return tracker.Snapshot{}, err
	}
	return sess.Engine.Snapshot(), nil
}

// Stop finishes the run. A submission error leaves the run pending on the session.
func (m *Manager) Stop(ctx context.Context, userID string) (tracker.FinishedRun, error) {
	sess, ok := m.acquire(userID, false)
	if !ok {
		return tracker.FinishedRun{}, tracker.ErrInvalidTransition
	}
	defer m.release(sess)
	return sess.Engine.Stop(ctx)
}

// PushFixes forwards uploaded fixes to the user's session. Fixes arriving
// while nothing is collecting (no session, idle, paused) are dropped; the
// count delivered is returned.
func (m *Manager) PushFixes(userID string, fixes []tracker.Fix) (tracker.Snapshot, int) {
	sess, ok := m.acquire(userID, false)
	if !ok {
		metrics.FixesTotal.WithLabelValues("ignored").Add(float64(len(fixes)))
		return idleSnapshot(), 0
	}
	defer m.release(sess)

	delivered := sess.Feed.Push(fixes...)
	if dropped := len(fixes) - delivered; dropped > 0 {
		metrics.FixesTotal.WithLabelValues("ignored").Add(float64(dropped))
	}
	return sess.Engine.Snapshot(), delivered
}

func idleSnapshot() tracker.Snapshot {
	return tracker.Snapshot{Status: tracker.StatusIdle, Path: []tracker.GeoPoint{}}
}

func (m *Manager) Snapshot(userID string) tracker.Snapshot {
	sess, ok := m.acquire(userID, false)
	if !ok {
		return idleSnapshot()
	}
	defer m.release(sess)
	return sess.Engine.Snapshot()
}

func (m *Manager) Ghost(userID string) (tracker.GhostPosition, bool) {
	sess, ok := m.acquire(userID, false)
	if !ok {
		return tracker.GhostPosition{}, false
	}
	defer m.release(sess)
	return sess.Engine.Ghost()
}

func (m *Manager) Pending(userID string) []tracker.FinishedRun {
	sess, ok := m.acquire(userID, false)
	if !ok {
		return []tracker.FinishedRun{}
	}
	defer m.release(sess)
	return sess.Engine.Pending()
}

func (m *Manager) RetryPending(ctx context.Context, userID string) (int, error) {
	sess, ok := m.acquire(userID, false)
	if !ok {
		return 0, nil
	}
	defer m.release(sess)
	return sess.Engine.RetryPending(ctx)
}

// SetMuted stores the voice preference; it outlives evicted sessions.
func (m *Manager) SetMuted(userID string, muted bool) {
	m.mu.Lock()
	if muted {
		m.muted[userID] = true
	} else {
		delete(m.muted, userID)
	}
	sess := m.sessions[userID]
	m.mu.Unlock()

	if sess == nil {
		return
	}
	sess.Voice.SetMuted(muted)
	if muted {
		sess.Voice.Silence()
	}
}

// Close stops every session's timers without finishing the runs.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sess := range m.sessions {
		sess.Engine.Close()
		sess.Voice.Silence()
	}
}
