package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Swind/go-fiber-runner/core"
	"github.com/Swind/go-fiber-runner/host"
	"github.com/Swind/go-fiber-runner/internal/config"
	"github.com/Swind/go-fiber-runner/internal/debugserver"
	"github.com/Swind/go-fiber-runner/internal/historystore"
	"github.com/Swind/go-fiber-runner/internal/logging"
	"github.com/Swind/go-fiber-runner/internal/sim"
	fiberprom "github.com/Swind/go-fiber-runner/observability/prometheus"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// errUnboundedSimulation is returned when a simulated-clock run has no frame
// limit: it would spin as fast as the CPU allows, forever.
var errUnboundedSimulation = errors.New("simulated runs need --frames or host.max_frames (or host.realtime: true)")

func newRunCmd() *cobra.Command {
	var (
		configPath  string
		frames      uint64
		metricsAddr string
		historyDB   string
		realtime    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario",
		Long: "Run creates the scenario's tasks in setup, then drives the scheduler one tick per frame\n" +
			"until the frame limit is reached or the process is interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-addr") {
				sc.Metrics.Addr = metricsAddr
			}
			if cmd.Flags().Changed("history-db") {
				sc.History.DB = historyDB
			}
			if cmd.Flags().Changed("realtime") {
				sc.Host.Realtime = realtime
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := runScenario(ctx, sc, frames)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Scenario YAML file")
	cmd.Flags().Uint64Var(&frames, "frames", 0, "Stop after N frames (overrides host.max_frames)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and /debug on this address (overrides metrics.addr)")
	cmd.Flags().StringVar(&historyDB, "history-db", "", "Persist resume history to this SQLite file (overrides history.db)")
	cmd.Flags().BoolVar(&realtime, "realtime", false, "Pace frames on the wall clock (overrides host.realtime)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

type runSummary struct {
	Scheduler string
	RunID     string
	Frames    uint64
	Elapsed   time.Duration
	Stats     core.SchedulerStats
	Tasks     []sim.TaskReport
	Infos     map[core.TaskHandle]core.TaskInfo
}

// runScenario wires the scheduler, its observers and the frame driver for sc
// and runs it to completion. Interruption through ctx is a normal stop.
func runScenario(ctx context.Context, sc *config.Scenario, maxFrames uint64) (*runSummary, error) {
	frameCfg := sc.FrameConfig(maxFrames)

	var clock core.Clock = core.SystemClock{}
	if !sc.Host.Realtime {
		if frameCfg.MaxFrames == 0 {
			return nil, errUnboundedSimulation
		}
		clock = core.NewManualClock(time.Now())
	}

	reg := prometheus.NewRegistry()
	exporter, err := fiberprom.NewMetricsExporter("", reg, fiberprom.ExporterOptions{})
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}

	cfg := sc.CoreConfig()
	cfg.Clock = clock
	cfg.Logger = logging.ForComponent(logger, "scheduler")
	cfg.Metrics = exporter
	cfg.PanicHandler = &core.DefaultPanicHandler{Logger: cfg.Logger}

	var (
		store *historystore.SQLiteStore
		runID string
	)
	if sc.History.DB != "" {
		store, err = historystore.NewSQLiteStore(sc.History.DB, logger)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		runID, err = store.BeginRun(ctx, cfg.Name, clock.Now())
		if err != nil {
			return nil, err
		}
		cfg.ResumeObserver = store.Observer(runID)
		logger.Info("recording resume history", "db", sc.History.DB, "run", runID)
	}

	s := core.NewScheduler(cfg)
	if err := s.Init(); err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}

	poller, err := fiberprom.NewSnapshotPoller(reg, sc.Metrics.PollInterval)
	if err != nil {
		_ = s.Teardown()
		return nil, fmt.Errorf("snapshot poller: %w", err)
	}
	poller.AddScheduler(cfg.Name, s)
	poller.Start(ctx)
	defer poller.Stop()

	if sc.Metrics.Addr != "" {
		var opts []debugserver.Option
		if store != nil {
			opts = append(opts, debugserver.WithStoredHistory(store, runID))
		}
		srv := debugserver.New(s, reg, logger, opts...)
		httpServer := &http.Server{
			Addr:    sc.Metrics.Addr,
			Handler: srv.Handler(),
		}
		go func() {
			logger.Info("debug server starting", "addr", sc.Metrics.Addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("debug server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("debug server shutdown", "error", err)
			}
		}()
	}

	workload := sim.NewWorkload(s, clock, logging.ForComponent(logger, "workload"), sc.Tasks)
	driver := host.NewFrameDriver(s, clock, logging.ForComponent(logger, "host"), frameCfg)

	started := clock.Now()
	driver.Setup(func() {
		created := workload.Setup()
		logger.Info("scenario tasks created", "created", created, "requested", len(sc.Tasks))
	})
	driver.SetLoop(workload.Loop)

	runErr := driver.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		logger.Info("run interrupted", "frames", driver.Frames())
		runErr = nil
	}

	poller.CollectOnce()
	summary := &runSummary{
		Scheduler: cfg.Name,
		RunID:     runID,
		Frames:    driver.Frames(),
		Elapsed:   clock.Now().Sub(started),
		Stats:     s.Stats(),
		Tasks:     workload.Reports(),
		Infos:     make(map[core.TaskHandle]core.TaskInfo),
	}
	for _, info := range s.Tasks() {
		summary.Infos[info.Handle] = info
	}

	if err := s.Teardown(); err != nil {
		logger.Warn("teardown", "error", err)
	}
	if runErr != nil {
		return summary, fmt.Errorf("run scenario: %w", runErr)
	}
	return summary, nil
}

func printSummary(w io.Writer, sum *runSummary) {
	st := sum.Stats
	fmt.Fprintf(w, "Scheduler:  %s\n", sum.Scheduler)
	if sum.RunID != "" {
		fmt.Fprintf(w, "Run:        %s\n", sum.RunID)
	}
	fmt.Fprintf(w, "Frames:     %s (%s)\n", humanize.Comma(int64(sum.Frames)), sum.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Ticks:      %s\n", humanize.Comma(int64(st.Ticks)))
	fmt.Fprintf(w, "Slots:      %d/%d used, %d active, %d terminated, %d rejected\n",
		st.Slots, st.Capacity, st.Active, st.Terminated, st.Rejected)
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HANDLE\tTASK\tITERATIONS\tRESUMES\tSTATE\tEXIT")
	for _, r := range sum.Tasks {
		if r.Handle == core.NoTask {
			fmt.Fprintf(tw, "-\t%s\t0\t0\trefused\t\n", r.Name)
			continue
		}
		info := sum.Infos[r.Handle]
		exit := info.ExitReason
		if r.Killed {
			exit = "killed"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			int(r.Handle), r.Name,
			humanize.Comma(int64(r.Iterations)), humanize.Comma(int64(info.Resumes)),
			info.State, exit)
	}
	tw.Flush()
}
