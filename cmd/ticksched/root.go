package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"fibersched/internal/job"
	"fibersched/internal/sched"
)

type runFlags struct {
	config    string
	frames    int
	trace     string
	logLevel  string
	logFormat string
	clients   int
	pings     int
	workers   int
}

func newRootCmd() *cobra.Command {
	var f runFlags
	root := &cobra.Command{
		Use:          "ticksched",
		Short:        "Run the cooperative task scheduler frame loop",
		Long:         "ticksched drives the task scheduler at a fixed frame rate with a ping/pong, fan-out and sleeper workload.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f, cmd.ErrOrStderr())
		},
	}

	root.Flags().StringVar(&f.config, "config", "config.yml", "Config file (.yml, .yaml or .toml)")
	root.Flags().IntVar(&f.frames, "frames", 600, "Maximum number of frames to run (0 = until the workload finishes)")
	root.Flags().StringVar(&f.trace, "trace", "", "Write scheduler status events to this CSV file")
	root.Flags().StringVar(&f.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	root.Flags().StringVar(&f.logFormat, "log-format", "text", "Log format (text, json)")
	root.Flags().IntVar(&f.clients, "clients", 4, "Number of ping clients")
	root.Flags().IntVar(&f.pings, "pings", 32, "Pings sent by each client")
	root.Flags().IntVar(&f.workers, "workers", -2, "Override the worker count (-1 = CPU count - 1)")
	return root
}

func newLogger(level, format string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if strings.ToLower(format) != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.StampMilli}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func run(ctx context.Context, f runFlags, stderr io.Writer) error {
	log := newLogger(f.logLevel, f.logFormat, stderr)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Debug().Msgf(format, args...)
	})); err != nil {
		log.Warn().Err(err).Msg("could not set GOMAXPROCS")
	}

	cfg := sched.Load(f.config)
	if f.workers >= -1 {
		cfg.Workers = f.workers
	}
	if f.trace != "" && cfg.StatusBuffer == 0 {
		cfg.StatusBuffer = 4096
	}
	log.Info().Interface("config", cfg).Msg("loaded config")

	s, err := sched.New(cfg, sched.WithLogger(log))
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer s.Shutdown()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var g errgroup.Group
	if f.trace != "" {
		file, err := os.Create(f.trace)
		if err != nil {
			return fmt.Errorf("create trace: %w", err)
		}
		defer file.Close()
		tr, err := sched.NewCSVTrace(file)
		if err != nil {
			return err
		}
		g.Go(func() error { return tr.Consume(s.StatusChannel()) })
	}

	futures := launch(s, f)

	clock := sched.NewTickClock(16)
	clock.Start(time.Second / time.Duration(cfg.TimerHz))
	defer clock.Stop()

	frames := loop(ctx, s, clock, cfg, f.frames, futures)

	for name, fut := range futures {
		res, ok := fut.Result()
		log.Info().Str("task", name).Bool("done", ok).Interface("result", res).Msg("workload result")
	}
	log.Info().Int("frames", frames).Interface("stats", s.Stats()).Msg("frame loop finished")

	s.Shutdown()
	return g.Wait()
}

// launch creates the demo workload and returns the futures to watch.
func launch(s *sched.Scheduler, f runFlags) map[string]*sched.Future {
	futures := map[string]*sched.Future{
		"server":  new(sched.Future),
		"fanout":  new(sched.Future),
		"sleeper": new(sched.Future),
	}

	// the server lives on the main goroutine, clients anywhere
	s.CreateDetached(10, job.PingServer, f.clients*f.pings, futures["server"], sched.FlagMainThreadPinned)
	for i := 0; i < f.clients; i++ {
		name := fmt.Sprintf("client-%d", i)
		futures[name] = new(sched.Future)
		s.CreateDetached(5, job.PingClient(f.pings), nil, futures[name], 0)
	}
	s.CreateDetached(1, job.FanOut(16, 1, job.SpinWork(3)), nil, futures["fanout"], sched.FlagBigStack)
	s.CreateDetached(1, job.SleepWork(250), nil, futures["sleeper"], sched.FlagRunDuringPause)
	return futures
}

func loop(ctx context.Context, s *sched.Scheduler, clock *sched.TickClock, cfg sched.Config, max int, futures map[string]*sched.Future) int {
	frame := time.NewTicker(time.Second / time.Duration(cfg.TargetFPS))
	defer frame.Stop()

	n := 0
	for max == 0 || n < max {
		s.StartBackgroundTasks()
		clock.Post(s)
		s.Tick()
		n++

		if allReady(futures) {
			break
		}
		select {
		case <-ctx.Done():
			return n
		case <-frame.C:
		}
	}
	return n
}

func allReady(futures map[string]*sched.Future) bool {
	for _, f := range futures {
		if !f.IsReady() {
			return false
		}
	}
	return true
}
