// Package tracker implements the live run-tracking engine.
//
// An Engine consumes two event sources, a 1 Hz timer and a stream of noisy,
// irregularly sampled GPS fixes, and maintains a RunSession: elapsed time,
// cumulative distance, a smoothed instantaneous pace, an estimated calorie
// burn and the recorded path. The pipeline for every fix is
//
//	Filter -> PaceSmoother -> Integrator -> (split cue)
//
// Distance is integrated from speed and the fix's own timestamp delta rather
// than summed from position deltas, so the order in which timer ticks and
// fixes arrive does not matter.
//
// All session state is owned by the Engine and guarded by its mutex; callers
// only see Snapshot copies and drive it through Start, Pause, Resume and Stop.
// Timer and fix callbacks run to completion under that lock and never block.
package tracker
