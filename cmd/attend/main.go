package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fanvote/fanvote-service/internal/attend"
	"github.com/fanvote/fanvote-service/internal/audio"
	"github.com/fanvote/fanvote-service/internal/config"
	"github.com/fanvote/fanvote-service/internal/modem"
)

const defaultConfigPath = "configs/config.yaml"

// Exit codes: 0 verified, 1 not verified, 2 usage or setup error.
const (
	exitVerified = 0
	exitFailed   = 1
	exitError    = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	contestID := flag.String("contest", "", "Contest ID to verify attendance for")
	timeout := flag.Duration("timeout", 0, "Listening timeout (overrides config)")
	flag.Parse()

	if *contestID == "" {
		fmt.Fprintln(os.Stderr, "Usage: attend -contest <id> [-config path] [-timeout duration]")
		return exitError
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return exitError
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))

	listenTimeout := cfg.Attend.GetListenTimeoutDuration()
	if *timeout > 0 {
		listenTimeout = *timeout
	}

	source, err := buildSource(&cfg.Audio)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up capture source: %v\n", err)
		return exitError
	}

	engine := modem.NewToneEngine(buildToneConfig(cfg))
	codec, err := modem.NewProcessor(engine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up codec: %v\n", err)
		return exitError
	}

	authenticator := attend.New(logger, source, codec, attend.Config{
		FrameSize: cfg.Audio.FrameSize,
		QueueSize: cfg.Audio.QueueSize,
	})

	// Ctrl-C aborts the attempt.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Listening for attendance challenge",
		slog.String("contest_id", *contestID),
		slog.Duration("timeout", listenTimeout),
		slog.String("source", cfg.Audio.Source),
	)

	result, err := authenticator.Authenticate(ctx, *contestID, listenTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Attempt aborted: %v\n", err)
		return exitError
	}

	seen, rejected := authenticator.Stats()
	logger.Info("Attempt finished",
		slog.Bool("authenticated", result.Authenticated),
		slog.Uint64("candidates_seen", seen),
		slog.Uint64("candidates_rejected", rejected),
	)

	fmt.Println(result.Message())
	if !result.Authenticated {
		return exitFailed
	}
	return exitVerified
}

// buildSource selects the capture source from configuration.
func buildSource(cfg *config.AudioConfig) (audio.Source, error) {
	switch cfg.Source {
	case "udp":
		return audio.NewUDPSource(cfg.UDPAddress), nil
	case "stdin":
		return audio.NewReaderSource(os.Stdin), nil
	default:
		return nil, fmt.Errorf("unknown audio source %q", cfg.Source)
	}
}

// buildToneConfig derives the FSK parameters from configuration, keeping the
// defaults for anything the config does not cover.
func buildToneConfig(cfg *config.Config) modem.ToneConfig {
	tone := modem.DefaultToneConfig(cfg.Audio.SampleRate)
	tone.SymbolSamples = cfg.Modem.GetSymbolSamples(cfg.Audio.SampleRate)
	tone.BaseFreq = cfg.Modem.BaseFrequency
	tone.FreqStep = cfg.Modem.FrequencyStep
	tone.Threshold = cfg.Modem.Threshold
	tone.MaxMessageLen = cfg.Modem.MaxMessageLen
	return tone
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
