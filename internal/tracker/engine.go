package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"backend-runtracker/internal/logging"
	"backend-runtracker/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidTransition = errors.New("invalid run state transition")
	ErrNoSubmitter       = errors.New("no run submitter configured")
)

// Submitter persists a finished run.
type Submitter interface {
	Submit(ctx context.Context, run FinishedRun) error
}

type EngineDeps struct {
	Config Config
	// Fixes may be nil; the engine then runs on the timer alone.
	// Subscribe must not invoke the handler before it returns.
	Fixes     FixSource
	Scheduler Scheduler
	Announcer Announcer
	Submitter Submitter
	WeightKg  float64
	Logger    *zerolog.Logger
	Now       func() time.Time
	// OnUpdate receives a snapshot after every change, outside the engine lock.
	// Its Path is nil; PathPoints tells observers when to fetch Snapshot.
	OnUpdate func(Snapshot)
}

// Engine is the run session state machine:
//
//	idle --Start--> starting --(3s countdown)--> running <--Pause/Resume--> paused
//	running|paused --Stop--> idle
//	starting --Cancel--> idle
type Engine struct {
	mu sync.Mutex

	cfg       Config
	fixes     FixSource
	sched     Scheduler
	announcer Announcer
	submitter Submitter
	log       zerolog.Logger
	now       func() time.Time
	onUpdate  func(Snapshot)

	filter   Filter
	smoother PaceSmoother
	integ    Integrator
	weightKg float64

	status  Status
	elapsed int
	lastFix *GeoPoint
	pace    float64
	ghost   *GhostSettings

	// Generations let callbacks from cancelled timers or subscriptions
	// recognise themselves as stale.
	runGen, timerGen, fixGen uint64
	stopTimer, stopFixes     func()
	countdown                []func()

	pending []FinishedRun
}

func NewEngine(deps EngineDeps) *Engine {
	cfg := deps.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	e := &Engine{
		cfg:       cfg,
		fixes:     deps.Fixes,
		sched:     deps.Scheduler,
		announcer: deps.Announcer,
		submitter: deps.Submitter,
		now:       deps.Now,
		onUpdate:  deps.OnUpdate,
		filter:    NewFilter(cfg),
		smoother:  NewPaceSmoother(cfg),
		integ:     NewIntegrator(cfg, deps.WeightKg),
		weightKg:  deps.WeightKg,
		status:    StatusIdle,
	}
	if e.sched == nil {
		e.sched = RealScheduler{}
	}
	if e.announcer == nil {
		e.announcer = AnnouncerFunc(func(string) {})
	}
	if e.now == nil {
		e.now = time.Now
	}
	if deps.Logger != nil {
		e.log = *deps.Logger
	} else {
		e.log = logging.With().Str("component", "tracker").Logger()
	}
	return e
}

// Start begins the spoken countdown. It is a no-op while starting or running.
func (e *Engine) Start(opts StartOptions) error {
	e.mu.Lock()
	switch e.status {
	case StatusStarting, StatusRunning:
		e.mu.Unlock()
		return nil
	case StatusPaused:
		e.mu.Unlock()
		return ErrInvalidTransition
	}

	e.ghost = nil
	if opts.GhostPace > 0 {
		e.ghost = &GhostSettings{TargetPaceMinPerKm: opts.GhostPace}
	}
	e.transitionLocked(StatusStarting)
	e.announcer.Announce(CueThree)

	// Fixes during the countdown only refresh lastFix so the first running
	// fix already has a baseline.
	e.subscribeFixesLocked()

	e.runGen++
	gen := e.runGen
	step := e.cfg.CountdownStep
	e.countdown = []func(){
		e.sched.After(step, func() { e.countdownCue(gen, CueTwo) }),
		e.sched.After(2*step, func() { e.countdownCue(gen, CueOne) }),
		e.sched.After(3*step, func() { e.completeCountdown(gen) }),
	}
	snap := e.updateLocked()
	e.mu.Unlock()

	e.notify(snap)
	return nil
}

func (e *Engine) countdownCue(gen uint64, cue string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen == e.runGen && e.status == StatusStarting {
		e.announcer.Announce(cue)
	}
}

func (e *Engine) completeCountdown(gen uint64) {
	e.mu.Lock()
	if gen != e.runGen || e.status != StatusStarting {
		e.mu.Unlock()
		return
	}
	e.countdown = nil
	e.announcer.Announce(CueGo)

	e.elapsed = 0
	e.integ.Reset(e.weightKg, e.cfg.DefaultWeightKg)
	e.smoother.Reset()
	e.pace = 0

	e.transitionLocked(StatusRunning)
	e.startTimerLocked()
	snap := e.updateLocked()
	e.mu.Unlock()

	e.notify(snap)
}

// Cancel aborts a countdown in progress.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	if e.status != StatusStarting {
		e.mu.Unlock()
		return ErrInvalidTransition
	}
	e.cancelCountdownLocked()
	e.stopFixesLocked()
	e.announcer.Announce(CueCancelled)
	e.ghost = nil
	e.transitionLocked(StatusIdle)
	snap := e.updateLocked()
	e.mu.Unlock()

	e.notify(snap)
	return nil
}

// Pause freezes the session. The last accepted fix is kept so resuming does
// not turn the paused interval into a distance jump.
func (e *Engine) Pause() error {
	e.mu.Lock()
	if e.status != StatusRunning {
		e.mu.Unlock()
		return ErrInvalidTransition
	}
	e.announcer.Announce(CuePaused)
	e.stopTimerLocked()
	e.stopFixesLocked()
	e.transitionLocked(StatusPaused)
	snap := e.updateLocked()
	e.mu.Unlock()

	e.notify(snap)
	return nil
}

func (e *Engine) Resume() error {
	e.mu.Lock()
	if e.status != StatusPaused {
		e.mu.Unlock()
		return ErrInvalidTransition
	}
	e.announcer.Announce(CueResumed)
	e.transitionLocked(StatusRunning)
	e.startTimerLocked()
	e.subscribeFixesLocked()
	snap := e.updateLocked()
	e.mu.Unlock()

	e.notify(snap)
	return nil
}

// Stop finalizes the run, clears the local session and then submits the
// finished run. The run stays in the pending buffer until a submission
// succeeds, so a failure can be retried with RetryPending.
func (e *Engine) Stop(ctx context.Context) (FinishedRun, error) {
	e.mu.Lock()
	if e.status != StatusRunning && e.status != StatusPaused {
		e.mu.Unlock()
		return FinishedRun{}, ErrInvalidTransition
	}
	e.announcer.Announce(CueFinished)
	e.stopTimerLocked()
	e.stopFixesLocked()

	distance := e.integ.DistanceKm()
	run := FinishedRun{
		ClientID: uuid.NewString(),
		Time:     e.elapsed,
		Distance: round2(distance),
		Pace:     FormatPace(e.elapsed, distance),
		Calories: int(math.Round(e.integ.CaloriesKcal())),
		Path:     e.integ.Path(),
		Date:     e.now().UTC(),
	}
	e.pending = append(e.pending, run)
	metrics.PendingSubmissions.Inc()

	e.elapsed = 0
	e.integ.Reset(e.weightKg, e.cfg.DefaultWeightKg)
	e.smoother.Reset()
	e.pace = 0
	e.lastFix = nil
	e.ghost = nil
	e.transitionLocked(StatusIdle)
	snap := e.updateLocked()
	e.mu.Unlock()

	e.notify(snap)
	e.log.Info().
		Int("time", run.Time).
		Float64("distance_km", run.Distance).
		Str("pace", run.Pace).
		Msg("run finished")

	return run, e.submit(ctx, run)
}

func (e *Engine) submit(ctx context.Context, run FinishedRun) error {
	if e.submitter == nil {
		return ErrNoSubmitter
	}
	if err := e.submitter.Submit(ctx, run); err != nil {
		e.log.Error().Err(err).Str("client_id", run.ClientID).Msg("run submission failed")
		return fmt.Errorf("submit run: %w", err)
	}

	e.mu.Lock()
	for i := range e.pending {
		if e.pending[i].ClientID == run.ClientID {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			metrics.PendingSubmissions.Dec()
			break
		}
	}
	e.mu.Unlock()
	return nil
}

// RetryPending resubmits every finished run that has not been acknowledged.
func (e *Engine) RetryPending(ctx context.Context) (int, error) {
	runs := e.Pending()
	submitted := 0
	var errs []error
	for _, run := range runs {
		if err := e.submit(ctx, run); err != nil {
			errs = append(errs, err)
			continue
		}
		submitted++
	}
	return submitted, errors.Join(errs...)
}

// Pending returns finished runs still awaiting acknowledgement.
func (e *Engine) Pending() []FinishedRun {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]FinishedRun, len(e.pending))
	copy(out, e.pending)
	return out
}

// HandleFix feeds a fix directly, bypassing the subscription.
func (e *Engine) HandleFix(fix Fix) {
	e.mu.Lock()
	accepted := e.handleFixLocked(fix)
	snap := e.updateLocked()
	e.mu.Unlock()

	if accepted {
		e.notify(snap)
	}
}

func (e *Engine) onSubscribedFix(gen uint64, fix Fix) {
	e.mu.Lock()
	if gen != e.fixGen {
		e.mu.Unlock()
		metrics.FixesTotal.WithLabelValues("ignored").Inc()
		return
	}
	accepted := e.handleFixLocked(fix)
	snap := e.updateLocked()
	e.mu.Unlock()

	if accepted {
		e.notify(snap)
	}
}

func (e *Engine) handleFixLocked(fix Fix) bool {
	r := e.filter.Evaluate(fix, e.lastFix)
	if !r.Accepted {
		metrics.FixesTotal.WithLabelValues(r.Reason).Inc()
		e.log.Debug().Str("reason", r.Reason).Float64("accuracy_m", fix.AccuracyM).Msg("fix rejected")
		return false
	}

	if e.status == StatusRunning {
		e.pace = e.smoother.Update(r.SpeedMps)
		if r.Gap {
			metrics.FixesTotal.WithLabelValues("gap").Inc()
			e.log.Debug().Float64("delta_s", r.TimeDeltaSeconds).Msg("fix gap, distance not integrated")
		} else if inc, ok := e.integ.Apply(r.SpeedMps, r.TimeDeltaSeconds, r.Point, e.elapsed); ok && inc.SplitKm > 0 {
			metrics.SplitCues.Inc()
			e.announcer.Announce(inc.SplitCue())
		}
	}
	metrics.FixesTotal.WithLabelValues("accepted").Inc()

	p := r.Point
	e.lastFix = &p
	return true
}

func (e *Engine) onTick(gen uint64) {
	e.mu.Lock()
	if gen != e.timerGen || e.status != StatusRunning {
		e.mu.Unlock()
		return
	}
	e.elapsed++
	snap := e.updateLocked()
	e.mu.Unlock()

	e.notify(snap)
}

// SetWeightKg changes the body weight used from the next run on.
func (e *Engine) SetWeightKg(kg float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.weightKg = kg
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(true)
}

// Ghost projects the ghost pacer for the current session, if one was requested.
func (e *Engine) Ghost() (GhostPosition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ghost == nil {
		return GhostPosition{}, false
	}
	return ProjectGhost(e.ghost.TargetPaceMinPerKm, e.elapsed, e.integ.DistanceKm(), e.integ.path)
}

// Close releases timers and subscriptions without finishing the run.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelCountdownLocked()
	e.stopTimerLocked()
	e.stopFixesLocked()
}

// updateLocked builds the snapshot handed to OnUpdate.
func (e *Engine) updateLocked() Snapshot {
	if e.onUpdate == nil {
		return Snapshot{}
	}
	return e.snapshotLocked(false)
}

func (e *Engine) snapshotLocked(withPath bool) Snapshot {
	distance := e.integ.DistanceKm()
	calories := e.integ.CaloriesKcal()
	live := calories
	if calories == 0 {
		live = LiveCalories(distance, e.cfg.LiveCaloriesPerKm)
	}

	s := Snapshot{
		Status:           e.status,
		ElapsedSeconds:   e.elapsed,
		DistanceKm:       distance,
		CaloriesKcal:     calories,
		LiveCaloriesKcal: live,
		SmoothedPace:     e.pace,
		LastWholeKm:      e.integ.LastWholeKm(),
		PathPoints:       e.integ.PathLen(),
	}
	if withPath {
		s.Path = e.integ.Path()
	}
	if e.lastFix != nil {
		p := *e.lastFix
		s.LastFix = &p
	}
	if e.ghost != nil {
		g := *e.ghost
		s.Ghost = &g
	}
	return s
}

func (e *Engine) notify(s Snapshot) {
	if e.onUpdate != nil {
		e.onUpdate(s)
	}
}

func (e *Engine) transitionLocked(to Status) {
	from := e.status
	e.status = to
	metrics.Transitions.WithLabelValues(string(from), string(to)).Inc()
	switch {
	case from == StatusIdle && to != StatusIdle:
		metrics.ActiveSessions.Inc()
	case from != StatusIdle && to == StatusIdle:
		metrics.ActiveSessions.Dec()
	}
	e.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("run state transition")
}

func (e *Engine) startTimerLocked() {
	e.stopTimerLocked()
	gen := e.timerGen
	e.stopTimer = e.sched.Every(e.cfg.TickInterval, func() { e.onTick(gen) })
}

func (e *Engine) stopTimerLocked() {
	if e.stopTimer != nil {
		e.stopTimer()
		e.stopTimer = nil
	}
	e.timerGen++
}

func (e *Engine) subscribeFixesLocked() {
	if e.fixes == nil || e.stopFixes != nil {
		return
	}
	e.fixGen++
	gen := e.fixGen
	e.stopFixes = e.fixes.Subscribe(func(f Fix) { e.onSubscribedFix(gen, f) })
}

func (e *Engine) stopFixesLocked() {
	if e.stopFixes != nil {
		e.stopFixes()
		e.stopFixes = nil
	}
	e.fixGen++
}

func (e *Engine) cancelCountdownLocked() {
	for _, cancel := range e.countdown {
		cancel()
	}
	e.countdown = nil
	e.runGen++
}
