// Command jitterbufd runs a standalone jitter buffer fed by a synthetic
// frame producer, for manual exercise and load-shape experiments. It wires
// internal/jitterbuf.Buffer to an output sink that logs a running count of
// emitted frames, an optional Redis event sink, and SIGINT/SIGTERM-driven graceful shutdown, following the
// cobra root-command and signal-handling shape used elsewhere in this
// codebase's command-line entry points.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shootao/jitterbuf/internal/eventsink"
	"github.com/shootao/jitterbuf/internal/jitterbuf"
)

// Cmd is the command line arguments.
type Cmd struct {
	ConfigPath    string
	BufferSize    int
	FrameSize     int
	FrameInterval time.Duration
	HighWater     int
	LowWater      int
	WithHeader    bool
	Silence       bool
	Duration      time.Duration
	RedisAddr     string
	RedisChannel  string
}

var cmd Cmd

var rootCmd = &cobra.Command{
	Use:   "jitterbufd",
	Short: "Run a jitter buffer fed by a synthetic producer",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(cmd)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to a YAML config file (overrides the flags below)")
	f.IntVar(&cmd.BufferSize, "buffer-size", 11*1024, "Ring capacity in bytes")
	f.IntVar(&cmd.FrameSize, "frame-size", 512, "Fixed frame size, or max payload size with --with-header")
	f.DurationVar(&cmd.FrameInterval, "frame-interval", 20*time.Millisecond, "Consumer tick period")
	f.IntVar(&cmd.HighWater, "high-water", 20, "High water mark, in frames")
	f.IntVar(&cmd.LowWater, "low-water", 10, "Low water mark, in frames")
	f.BoolVar(&cmd.WithHeader, "with-header", false, "Use length-prefixed framing")
	f.BoolVar(&cmd.Silence, "output-silence", false, "Emit a silence frame on empty ticks")
	f.DurationVar(&cmd.Duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	f.StringVar(&cmd.RedisAddr, "redis-addr", "", "Redis address for state-event publishing (empty disables it)")
	f.StringVar(&cmd.RedisChannel, "redis-channel", eventsink.DefaultChannel, "Redis pub/sub channel for state events")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd) error {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.Development = false
	logger, err := logConfig.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	var cfg jitterbuf.Config
	if cmd.ConfigPath != "" {
		cfg, err = jitterbuf.LoadConfig(cmd.ConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = jitterbuf.DefaultConfig()
		cfg.BufferSize = cmd.BufferSize
		cfg.FrameSize = cmd.FrameSize
		cfg.FrameInterval = cmd.FrameInterval
		cfg.HighWater = cmd.HighWater
		cfg.LowWater = cmd.LowWater
		cfg.WithHeader = cmd.WithHeader
		cfg.OutputSilenceOnEmpty = cmd.Silence
	}
	cfg.Logger = logger
	cfg.OutputSink = stdoutFrameCounter(logger)

	if cmd.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cmd.RedisAddr})
		defer client.Close()
		cfg.EventSink = eventsink.NewRedisEventSink(client, cmd.RedisChannel)
	}

	buf, err := jitterbuf.New(cfg)
	if err != nil {
		return fmt.Errorf("construct buffer: %w", err)
	}
	defer buf.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := buf.Start(ctx); err != nil {
		return fmt.Errorf("start buffer: %w", err)
	}

	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		runProducer(ctx, buf, cfg)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var timeout <-chan time.Time
	if cmd.Duration > 0 {
		timer := time.NewTimer(cmd.Duration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-timeout:
		logger.Info("duration elapsed")
	}

	cancel()
	<-producerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := buf.Stop(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("stop returned an error", zap.Error(err))
	}

	logger.Info("jitterbufd stopped")
	return nil
}

// runProducer writes randomly-sized bursts of synthetic frames at a rate
// loosely correlated with frame_interval, to exercise both the BUFFERING
// pre-roll and occasional overrun/underrun transitions.
func runProducer(ctx context.Context, buf *jitterbuf.Buffer, cfg jitterbuf.Config) {
	ticker := time.NewTicker(cfg.FrameInterval)
	defer ticker.Stop()

	src := rand.New(rand.NewSource(1))
	seq := uint32(0)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Occasionally skip a tick or double up, to create realistic
			// jitter around the steady production rate.
			bursts := 1
			switch {
			case src.Intn(20) == 0:
				bursts = 0
			case src.Intn(20) == 0:
				bursts = 2
			}
			for i := 0; i < bursts; i++ {
				frame := makeFrame(cfg.FrameSize, seq)
				seq++
				if err := buf.Write(frame); err != nil {
					return
				}
			}
		}
	}
}

// makeFrame builds a synthetic frame whose first four bytes carry an
// incrementing sequence number, so a receiver can verify order preservation.
func makeFrame(size int, seq uint32) []byte {
	frame := make([]byte, size)
	binary.BigEndian.PutUint32(frame, seq)
	return frame
}

// stdoutFrameCounter returns an OutputSink that logs one debug line every
// 50 emitted frames rather than writing raw bytes to stdout, keeping the
// terminal readable during manual runs.
func stdoutFrameCounter(logger *zap.Logger) jitterbuf.OutputSink {
	var count uint64
	return func(frame []byte) {
		count++
		if count%50 == 0 {
			logger.Debug("frames emitted", zap.Uint64("count", count), zap.Int("last_frame_bytes", len(frame)))
		}
	}
}
