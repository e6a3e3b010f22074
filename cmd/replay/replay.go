package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"backend-runtracker/internal/live"
	"backend-runtracker/internal/logging"
	"backend-runtracker/internal/shared/geo"
	"backend-runtracker/internal/tracker"

	"github.com/spf13/cobra"
)

type replayOptions struct {
	WeightKg    float64
	GhostPace   float64
	MaxAccuracy float64
	StopSpeed   float64
	Path        bool
	Quiet       bool
	LogLevel    string
}

type replayResult struct {
	Run   tracker.FinishedRun `json:"run"`
	Fixes int                 `json:"fixes"`
	// PathKm is the point-to-point length of the recorded path, for comparison
	// with the speed-integrated distance.
	PathKm float64                `json:"path_km"`
	Ghost  *tracker.GhostPosition `json:"ghost,omitempty"`
}

func newRootCmd() *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay [fixes.ndjson]",
		Short: "Replay a recorded GPS log through the run tracker",
		Long: `Reads one geolocation fix per line ({"coords":{...},"timestamp":ms}) from the
given file or stdin, runs them through the live tracking engine on virtual time
and prints the finished run as JSON. Spoken cues go to stderr.`,
		Example: `  replay morning.ndjson --weight 72
  cat run.ndjson | replay --ghost-pace 5.5 --path`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Init(logging.Config{Level: opts.LogLevel, Format: "console"})

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			cues := cmd.ErrOrStderr()
			if opts.Quiet {
				cues = io.Discard
			}
			res, err := replay(cmd.Context(), in, opts, cues)
			if err != nil {
				return err
			}
			if !opts.Path {
				res.Run.Path = nil
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	defaults := tracker.DefaultConfig()
	cmd.Flags().Float64Var(&opts.WeightKg, "weight", defaults.DefaultWeightKg, "Body weight in kg for calories")
	cmd.Flags().Float64Var(&opts.GhostPace, "ghost-pace", 0, "Race a ghost at this pace (min/km)")
	cmd.Flags().Float64Var(&opts.MaxAccuracy, "max-accuracy", defaults.MaxAccuracyM, "Drop fixes less accurate than this (m)")
	cmd.Flags().Float64Var(&opts.StopSpeed, "stop-speed", defaults.StopSpeedMps, "Treat speeds below this as standing (m/s)")
	cmd.Flags().BoolVar(&opts.Path, "path", false, "Include the recorded path in the output")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Do not print spoken cues")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "warn", "Log level")
	return cmd
}

type collector struct {
	runs []tracker.FinishedRun
}

func (c *collector) Submit(_ context.Context, run tracker.FinishedRun) error {
	c.runs = append(c.runs, run)
	return nil
}

// replay feeds the log through an engine whose timer follows the fix
// timestamps. The first fix lands right after the countdown.
func replay(ctx context.Context, in io.Reader, opts replayOptions, cues io.Writer) (replayResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	fixes, err := readFixes(in)
	if err != nil {
		return replayResult{}, err
	}
	if len(fixes) == 0 {
		return replayResult{}, live.ErrNoFixes
	}

	cfg := tracker.DefaultConfig()
	if opts.MaxAccuracy > 0 {
		cfg.MaxAccuracyM = opts.MaxAccuracy
	}
	if opts.StopSpeed > 0 {
		cfg.StopSpeedMps = opts.StopSpeed
	}

	sched := tracker.NewManualScheduler()
	feed := live.NewFeed()
	store := &collector{}
	var runStart time.Duration
	announce := tracker.AnnouncerFunc(func(text string) {
		at := sched.Now() - runStart
		if at < 0 {
			at = 0
		}
		fmt.Fprintf(cues, "[%02d:%02d] %s\n", int(at.Minutes()), int(at.Seconds())%60, text)
	})
	log := logging.With().Str("component", "replay").Logger()
	engine := tracker.NewEngine(tracker.EngineDeps{
		Config:    cfg,
		Fixes:     feed,
		Scheduler: sched,
		Announcer: announce,
		Submitter: store,
		WeightKg:  opts.WeightKg,
		Logger:    &log,
	})
	defer engine.Close()

	if err := engine.Start(tracker.StartOptions{GhostPace: opts.GhostPace}); err != nil {
		return replayResult{}, err
	}
	sched.Advance(3 * cfg.CountdownStep)
	runStart = sched.Now()

	t0 := fixes[0].TimestampMs
	for _, fix := range fixes {
		offset := time.Duration(fix.TimestampMs-t0) * time.Millisecond
		if wait := runStart + offset - sched.Now(); wait > 0 {
			sched.Advance(wait)
		}
		feed.Push(fix)
	}

	res := replayResult{Fixes: len(fixes)}
	if g, ok := engine.Ghost(); ok {
		res.Ghost = &g
	}
	res.Run, err = engine.Stop(ctx)
	if err != nil {
		return replayResult{}, err
	}

	points := make([][2]float64, len(res.Run.Path))
	for i, p := range res.Run.Path {
		points[i] = [2]float64{p.Lat, p.Lng}
	}
	res.PathKm = math.Round(geo.PathLengthKm(points)*1000) / 1000
	return res, nil
}

func readFixes(in io.Reader) ([]tracker.Fix, error) {
	var fixes []tracker.Fix
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var p live.FixPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		fix, err := p.Fix()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		fixes = append(fixes, fix)
	}
	return fixes, scanner.Err()
}
