// Command linecount plays a sequence of frames against a detection service in
// lock step and counts objects crossing a horizontal line.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/LdDl/mot-linecount/analytics"
	"github.com/LdDl/mot-linecount/internal/config"
	"github.com/LdDl/mot-linecount/internal/imageseq"
	"github.com/LdDl/mot-linecount/internal/observe"
	"github.com/LdDl/mot-linecount/internal/report"
	"github.com/LdDl/mot-linecount/internal/wschannel"
	"github.com/LdDl/mot-linecount/mot"
	"github.com/LdDl/mot-linecount/pump"
)

// errFinished stops the process group once playback reached the end
var errFinished = errors.New("playback finished")

const statusInterval = 500 * time.Millisecond

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file (defaults are used when empty)")
	framesDir := flag.String("frames", "", "directory of frames, overrides source.frames_dir")
	linePosition := flag.Float64("line", -1, "counting line as a fraction of frame height, overrides tracker.line_position")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *framesDir, *linePosition)
	if err != nil {
		fmt.Fprintf(os.Stderr, "linecount: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.Level.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	counters, err := process(ctx, cfg, logger)
	if err != nil {
		logger.Error("linecount failed", "error", err)
		return 1
	}
	logger.Info("done",
		"total_detections", counters.TotalDetections,
		"passed_up", counters.PassedUp,
		"passed_down", counters.PassedDown,
	)
	for class, c := range counters.ByClass {
		logger.Info("class summary", "class", class, "up", c.PassedUp, "down", c.PassedDown)
	}
	return 0
}

func loadConfig(path, framesDir string, linePosition float64) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if framesDir != "" {
		cfg.Source.FramesDir = framesDir
	}
	if linePosition >= 0 {
		cfg.Tracker.LinePosition = linePosition
	}
	if cfg.Source.FramesDir == "" {
		return nil, errors.Wrap(config.ErrInvalid, "source.frames_dir is required (or pass -frames)")
	}
	return cfg, cfg.Validate()
}

// process runs one source to the end (or until ctx is done) and returns the final counters
func process(ctx context.Context, cfg *config.Config, logger *slog.Logger) (analytics.Counters, error) {
	seq, err := imageseq.Open(cfg.Source.FramesDir,
		imageseq.WithFPS(cfg.Source.FPS),
		imageseq.WithJPEGQuality(cfg.Channel.JPEGQuality),
		imageseq.WithLogger(logger),
	)
	if err != nil {
		return analytics.Counters{}, err
	}

	metrics := observe.Noop()
	var provider *observe.Provider
	if cfg.Metrics.ListenAddr != "" {
		provider, err = observe.InitProvider()
		if err != nil {
			return analytics.Counters{}, err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("meter provider shutdown", "error", err)
			}
		}()
		metrics, err = observe.NewMetrics(provider.MeterProvider)
		if err != nil {
			return analytics.Counters{}, err
		}
	}

	sinks := pump.MultiSink{pump.RenderFunc(func(result pump.Result) {
		for _, ev := range result.Events {
			logger.Info("line crossed",
				"position", result.Position,
				"class", ev.Class,
				"direction", ev.Direction,
				"track", ev.TrackID,
			)
		}
	})}
	if cfg.Report.CSVPath != "" {
		csvSink, err := report.CreateCSV(cfg.Report.CSVPath)
		if err != nil {
			return analytics.Counters{}, err
		}
		defer func() {
			if err := csvSink.Close(); err != nil {
				logger.Error("crossing report", "path", cfg.Report.CSVPath, "error", err)
			}
		}()
		sinks = append(sinks, csvSink)
	}
	if cfg.Report.TracksPath != "" {
		tracksSink, err := report.CreateTrackCSV(cfg.Report.TracksPath)
		if err != nil {
			return analytics.Counters{}, err
		}
		defer func() {
			if err := tracksSink.Close(); err != nil {
				logger.Error("track report", "path", cfg.Report.TracksPath, "error", err)
			}
		}()
		sinks = append(sinks, tracksSink)
	}

	timestep := cfg.Playback.Timestep
	tracker := mot.NewLineTracker(
		mot.WithMaxDistance(cfg.Tracker.MaxDistance),
		mot.WithStaleAfter(cfg.Tracker.StaleAfter),
		mot.WithLinePosition(cfg.Tracker.LinePosition),
		mot.WithTimeStep(timestep),
	)
	session := pump.NewSession(tracker, analytics.New())

	client := wschannel.New(cfg.Channel.URL,
		wschannel.WithReconnectDelay(cfg.Channel.ReconnectDelay),
		wschannel.WithLogger(logger),
	)
	p := pump.New(session, client,
		pump.WithRenderSink(sinks),
		pump.WithLogger(logger),
		pump.WithMetrics(metrics),
		pump.WithRequestWidth(cfg.Channel.RequestWidth),
		pump.WithTimestep(timestep),
		pump.WithConfidenceThreshold(cfg.Filter.Confidence),
	)
	loop := pump.NewLoop(p,
		pump.WithRequestTimeout(cfg.Channel.RequestTimeout),
		pump.WithLoopLogger(logger),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		return client.Run(gctx, loop)
	})
	if provider != nil {
		serveMetrics(gctx, g, cfg.Metrics.ListenAddr, provider, logger)
	}

	g.Go(func() error {
		width, height := seq.DisplaySize()
		if err := loop.LoadSource(seq, seq, float64(width), float64(height)); err != nil {
			return err
		}
		if err := loop.Start(); err != nil {
			return err
		}
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
			}
			st, err := loop.Status()
			if err != nil {
				return err
			}
			logger.Debug("progress",
				"position", st.CurrentTime,
				"duration", st.Duration,
				"connected", st.Connected,
				"throughput", st.Throughput,
				"live_tracks", st.LiveTracks,
			)
			if !st.Playing && st.State == pump.Idle && st.CurrentTime >= st.Duration {
				return errFinished
			}
		}
	})

	err = g.Wait()
	// Every goroutine touching the session has exited
	final := session.Analytics.Counters()
	if errors.Is(err, errFinished) || errors.Is(err, context.Canceled) {
		return final, nil
	}
	return final, err
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, provider *observe.Provider, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", provider.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "metrics server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
