// Command miniexplorer is the main entry point for the MiniExplorer
// hands-free conversation device.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/miniexplorer/internal/app"
	"github.com/MrWong99/miniexplorer/internal/config"
	"github.com/MrWong99/miniexplorer/internal/observe"
	"github.com/MrWong99/miniexplorer/internal/recorder"
	"github.com/MrWong99/miniexplorer/pkg/audio/malgo"
	"github.com/MrWong99/miniexplorer/pkg/provider/camera"
	"github.com/MrWong99/miniexplorer/pkg/provider/camera/ffmpeg"
	"github.com/MrWong99/miniexplorer/pkg/provider/chat/coze"
	"github.com/MrWong99/miniexplorer/pkg/provider/tts"
	"github.com/MrWong99/miniexplorer/pkg/provider/tts/coqui"
	"github.com/MrWong99/miniexplorer/pkg/provider/tts/system"
	"github.com/MrWong99/miniexplorer/pkg/provider/vad/energy"
)

const version = "0.3.0"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	mode := flag.String("mode", "", "enter this mode at startup (explore or companion)")
	facing := flag.String("facing", "", "camera for the startup mode (environment or user)")
	autostart := flag.Bool("autostart", false, "start listening without waiting for the start command")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	var application *app.App
	watcher, err := config.NewWatcher(*configPath, func(prev, next *config.Config) {
		if application != nil {
			application.ApplyConfig(prev, next)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "miniexplorer: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "miniexplorer: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(cfg.Server.LogFormat, level))

	slog.Info("miniexplorer starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "miniexplorer",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerSpeechEngines(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(os.Stdout, cfg, providers)

	application, err = app.New(ctx, cfg, providers,
		app.WithLogLevel(level),
		app.WithWatcher(watcher),
		app.WithCommandInput(os.Stdin, os.Stdout),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if err := application.Boot(ctx, app.BootOptions{Mode: *mode, Facing: *facing, AutoStart: *autostart}); err != nil {
		slog.Error("failed to boot", "err", err)
		_ = application.Shutdown(context.Background())
		return 1
	}

	slog.Info("ready, type 'enter explore' then 'start', or press Ctrl+C to quit")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerSpeechEngines wires the built-in speech engines into reg.
func registerSpeechEngines(reg *config.Registry) {
	for _, engine := range system.Engines {
		reg.RegisterSpeaker(string(engine), func(v config.VoiceConfig) (tts.Speaker, error) {
			return system.New(engine,
				system.WithVoice(tts.Voice{Name: v.Voice, Language: v.Language, Rate: v.Rate}),
				system.WithBinary(v.Binary),
			)
		})
	}

	reg.RegisterSpeaker("coqui", func(v config.VoiceConfig) (tts.Speaker, error) {
		var opts []coqui.Option
		if v.Language != "" {
			opts = append(opts, coqui.WithLanguage(v.Language))
		}
		if v.Voice != "" {
			opts = append(opts, coqui.WithSpeaker(v.Voice))
		}
		return coqui.New(v.URL, malgo.NewPlayer(), opts...)
	})

	slog.Debug("registered speech engines", "engines", reg.Engines())
}

// buildProviders instantiates the devices and the backend client named in
// cfg and returns them for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{
		Microphone: malgo.New(
			malgo.WithSampleRate(cfg.Audio.SampleRate),
			malgo.WithFrameSize(cfg.Audio.FrameSize),
		),
		VAD: energy.Engine{},
	}

	if cfg.Camera.IsEnabled() {
		front := cfg.Camera.FrontDevice
		if front == "" {
			front = cfg.Camera.Device
		}
		ps.Camera = ffmpeg.New(
			ffmpeg.WithBinary(cfg.Camera.FFmpegPath),
			ffmpeg.WithInputFormat(cfg.Camera.InputFormat),
			ffmpeg.WithDevice(camera.FacingEnvironment, cfg.Camera.Device),
			ffmpeg.WithDevice(camera.FacingUser, front),
		)
		slog.Info("provider created", "kind", "camera", "device", cfg.Camera.Device)
	}

	client, err := coze.New(cfg.Backend.Token,
		coze.WithBaseURL(cfg.Backend.BaseURL),
		coze.WithUserID(app.UserID(cfg.Backend)),
		coze.WithPolling(cfg.Backend.PollAttempts, cfg.Backend.PollInterval),
		coze.WithStreaming(cfg.Backend.StreamAudio),
		coze.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("create chat client: %w", err)
	}
	ps.Chat = client

	speakers, names, err := reg.CreateSpeakers(cfg.Speech.Voices)
	if err != nil {
		if len(speakers) == 0 {
			return nil, fmt.Errorf("create speech engines: %w", err)
		}
		slog.Warn("some speech engines are unavailable", "err", err)
	}
	ps.Speakers, ps.SpeakerNames = speakers, names
	slog.Info("provider created", "kind", "speech", "engines", names)

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config, ps *app.Providers) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║      MiniExplorer, startup summary    ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Backend", cfg.Backend.BaseURL)
	printRow(w, "Explore bot", cfg.Modes.Explore.BotID)
	printRow(w, "Companion bot", cfg.Modes.Companion.BotID)
	if ps.Camera != nil {
		printRow(w, "Camera", cfg.Camera.Device)
	} else {
		printRow(w, "Camera", "(disabled)")
	}
	printRow(w, "Speech", fmt.Sprint(ps.SpeakerNames))
	// Resolve the strategy the engine will pick at the configured capture rate.
	if rec, err := recorder.New(cfg.Audio.SampleRate, app.RecorderOptions(cfg.Recorder)...); err == nil {
		printRow(w, "Clips", string(rec.Strategy()))
	} else {
		printRow(w, "Clips", "(invalid capture rate)")
	}
	if cfg.History.PostgresDSN != "" {
		printRow(w, "History", "postgres")
	} else {
		printRow(w, "History", "memory")
	}
	if cfg.Server.ListenAddr != "" {
		printRow(w, "Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printRow(w io.Writer, label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-14s  : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(format config.LogFormat, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
