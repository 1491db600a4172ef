package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/idprobe/internal/clock/system"
	"github.com/JakeFAU/idprobe/internal/config"
	"github.com/JakeFAU/idprobe/internal/id/uuid"
	"github.com/JakeFAU/idprobe/internal/logging"
	"github.com/JakeFAU/idprobe/internal/policy/ratelimit"
	"github.com/JakeFAU/idprobe/internal/probe"
	"github.com/JakeFAU/idprobe/internal/progress"
	"github.com/JakeFAU/idprobe/internal/progress/sinks"
	"github.com/JakeFAU/idprobe/internal/server"
	"github.com/JakeFAU/idprobe/internal/sink"
	"github.com/JakeFAU/idprobe/internal/sink/file"
	pubsubsink "github.com/JakeFAU/idprobe/internal/sink/pubsub"
	collytransport "github.com/JakeFAU/idprobe/internal/transport/colly"
)

const closeTimeout = 10 * time.Second

func runScan(cmd *cobra.Command, args []string, cfgFile string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	tmpl, err := probe.ParseTemplate(args[0], cfg.Probe.InnerToken, cfg.Probe.OuterToken)
	if err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}
	start := probe.DefaultOuterStart
	if len(args) > 1 {
		start = parseStart(args[1])
	}
	// Usage is only useful for argument mistakes; startup failures past this
	// point are reported on their own.
	cmd.SilenceUsage = true

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		// Sync on a terminal can return EINVAL.
		_ = logger.Sync()
	}()
	defer zap.ReplaceGlobals(logger)()

	ctx, stop := watchInterrupts(cmd.Context(), logger, os.Exit)
	defer stop()

	_, err = scan(ctx, tmpl, start, cfg, logger)
	return err
}

// scan wires the probing engine from cfg and runs it until the outer range
// is exhausted or ctx is cancelled.
func scan(ctx context.Context, tmpl probe.Template, start int, cfg config.Config, logger *zap.Logger) (probe.Summary, error) {
	runID, runIDText, err := uuid.New().NewRunID()
	if err != nil {
		return probe.Summary{}, fmt.Errorf("run id: %w", err)
	}
	logger = logger.With(zap.String("run_id", runIDText))
	logger.Info("starting scan",
		zap.String("template", tmpl.String()),
		zap.Int("outer_start", start),
		zap.Int("outer_end", cfg.Probe.OuterEnd),
		zap.Int("inner_start", cfg.Probe.InnerStart),
		zap.Int("inner_end", cfg.Probe.InnerEnd),
		zap.Int("concurrency", cfg.Probe.Concurrency),
		zap.String("output", cfg.Output.Path),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return probe.Summary{}, fmt.Errorf("prometheus sink: %w", err)
	}
	status := sinks.NewStatusSink()
	hub := progress.NewHub(
		progress.Config{Logger: logger.Named("progress")},
		promSink,
		sinks.NewLogSink(logger.Named("progress")),
		status,
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	discoveries, closeDiscoveries, err := openDiscoverySink(ctx, cfg, runIDText, logger)
	if err != nil {
		return probe.Summary{}, err
	}
	defer closeDiscoveries()

	clock := system.New()
	prober := probe.NewProber(
		collytransport.New(collytransport.Config{
			Timeout:       cfg.Probe.RequestTimeout,
			RespectRobots: cfg.Probe.RespectRobots,
			Logger:        logger.Named("transport"),
		}),
		probe.NewRandomCourtesy(cfg.Probe.JitterMin, cfg.Probe.JitterMax, cfg.Probe.UserAgents),
		ratelimit.New(ratelimit.Config{
			RPS:    cfg.Probe.RequestsPerSecond,
			Burst:  cfg.Probe.Burst,
			Logger: logger.Named("ratelimit"),
		}),
		probe.TimerPauser{},
		clock,
		hub,
		probe.ProberConfig{
			Timeout:     cfg.Probe.RequestTimeout,
			MaxRetries:  cfg.Probe.MaxRetries,
			BackoffBase: cfg.Probe.BackoffBase,
			RunID:       runID,
		},
		logger.Named("prober"),
	)
	scheduler, err := probe.NewScheduler(prober, tmpl, discoveries, probe.SchedulerConfig{
		Concurrency: cfg.Probe.Concurrency,
		InnerStart:  cfg.Probe.InnerStart,
		InnerEnd:    cfg.Probe.InnerEnd,
		RunID:       runID,
	}, clock, hub, logger.Named("scheduler"))
	if err != nil {
		return probe.Summary{}, fmt.Errorf("init scheduler: %w", err)
	}
	driver, err := probe.NewDriver(scheduler, probe.DriverConfig{
		Start: start,
		End:   cfg.Probe.OuterEnd,
		RunID: runID,
	}, clock, hub, logger.Named("driver"))
	if err != nil {
		return probe.Summary{}, fmt.Errorf("init driver: %w", err)
	}

	// The endpoint stays up until the driver returns, including while a
	// cancelled scan drains.
	serveCtx, stopServing := context.WithCancel(context.WithoutCancel(ctx))
	defer stopServing()
	group, groupCtx := errgroup.WithContext(serveCtx)
	var srv *server.Server
	if cfg.Metrics.Addr != "" {
		srv, err = server.New(status, registry, registry, logger.Named("server"))
		if err != nil {
			return probe.Summary{}, fmt.Errorf("init metrics server: %w", err)
		}
		ln, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return probe.Summary{}, fmt.Errorf("listen %s: %w", cfg.Metrics.Addr, err)
		}
		group.Go(func() error {
			return srv.Serve(groupCtx, ln)
		})
		srv.SetReady(true)
	}

	summary := driver.Run(ctx)

	if srv != nil {
		srv.SetReady(false)
	}
	stopServing()
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("metrics server stopped with error", zap.Error(err))
	}

	logger.Info("exiting",
		zap.Int("outer_scanned", summary.OuterScanned),
		zap.Strings("discoveries", summary.Discoveries),
		zap.Bool("cancelled", summary.Cancelled),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

// openDiscoverySink opens the discovery log and, when configured, tees
// discoveries to Pub/Sub. The returned func closes whatever was opened.
func openDiscoverySink(
	ctx context.Context,
	cfg config.Config,
	runID string,
	logger *zap.Logger,
) (probe.DiscoverySink, func(), error) {
	logFile, err := file.New(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open discovery log: %w", err)
	}
	closeLog := func() {
		if err := logFile.Close(); err != nil {
			logger.Warn("discovery log close failed", zap.String("path", logFile.Path()), zap.Error(err))
		}
	}
	if !cfg.PubSub.Enabled() {
		return logFile, closeLog, nil
	}

	publisher, err := pubsubsink.Dial(ctx, cfg.PubSub, runID)
	if err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("dial pubsub: %w", err)
	}
	closeAll := func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("pubsub sink close failed", zap.Error(err))
		}
		closeLog()
	}
	tee, err := sink.NewTee(logger.Named("sink"), logFile, publisher)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("init discovery sink: %w", err)
	}
	logger.Info("publishing discoveries",
		zap.String("project_id", cfg.PubSub.ProjectID),
		zap.String("topic", cfg.PubSub.TopicName),
	)
	return tee, closeAll, nil
}
