package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/miniexplorer/internal/farewell"
	"github.com/MrWong99/miniexplorer/internal/recorder"
	"github.com/MrWong99/miniexplorer/pkg/provider/camera"
	"github.com/MrWong99/miniexplorer/pkg/provider/chat/coze"
	"github.com/MrWong99/miniexplorer/pkg/provider/vad"
	"gopkg.in/yaml.v3"
)

// ValidSpeechEngines lists the speech engines registered by the application.
// Used by [Validate] to warn about unrecognised engine names.
var ValidSpeechEngines = []string{"say", "espeak-ng", "spd-say", "coqui"}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr = "127.0.0.1:8089"
	DefaultHoldOff    = 800 * time.Millisecond
	DefaultTick       = 16 * time.Millisecond
	DefaultPreRoll    = 200 * time.Millisecond
	DefaultMaxSegment = 60 * time.Second
	DefaultSampleRate = 48000
	DefaultFrameSize  = 960
	DefaultTimeout    = 60 * time.Second
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero values in cfg. The backend token falls back to
// the $COZE_TOKEN environment variable.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.LogFormat == "" {
		s.LogFormat = LogFormatText
	}

	b := &cfg.Backend
	if b.BaseURL == "" {
		b.BaseURL = coze.DefaultBaseURL
	}
	if b.Token == "" {
		b.Token = strings.TrimSpace(os.Getenv(TokenEnv))
	}
	if b.PollAttempts == 0 {
		b.PollAttempts = coze.DefaultPollAttempts
	}
	if b.PollInterval == 0 {
		b.PollInterval = coze.DefaultPollInterval
	}
	if b.Timeout == 0 {
		b.Timeout = DefaultTimeout
	}

	if cfg.Modes.Explore.Facing == "" {
		cfg.Modes.Explore.Facing = string(camera.FacingEnvironment)
	}
	if cfg.Modes.Companion.Facing == "" {
		cfg.Modes.Companion.Facing = string(camera.FacingUser)
	}

	v := &cfg.VAD
	if v.CalibrationWindow == 0 {
		v.CalibrationWindow = vad.DefaultCalibrationWindow
	}
	if v.CalibrationCadence == 0 {
		v.CalibrationCadence = vad.DefaultCalibrationCadence
	}
	if v.Multiplier == 0 {
		v.Multiplier = vad.DefaultMultiplier
	}
	if v.MinThreshold == 0 {
		v.MinThreshold = vad.DefaultMinThreshold
	}
	if v.MaxThreshold == 0 {
		v.MaxThreshold = vad.DefaultMaxThreshold
	}
	if v.HoldOff == 0 {
		v.HoldOff = DefaultHoldOff
	}
	if v.Tick == 0 {
		v.Tick = DefaultTick
	}

	rc := &cfg.Recorder
	if rc.TargetSampleRate == 0 {
		rc.TargetSampleRate = recorder.DefaultTargetRate
	}
	if rc.PreRoll == 0 {
		rc.PreRoll = DefaultPreRoll
	}
	if rc.MaxSegment == 0 {
		rc.MaxSegment = DefaultMaxSegment
	}

	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.FrameSize == 0 {
		cfg.Audio.FrameSize = DefaultFrameSize
	}

	if len(cfg.Speech.Voices) == 0 {
		cfg.Speech.Voices = []VoiceConfig{{Engine: "say"}, {Engine: "espeak-ng"}, {Engine: "spd-say"}}
	}

	if cfg.Farewell.Fuzzy && cfg.Farewell.FuzzyThreshold == 0 {
		cfg.Farewell.FuzzyThreshold = farewell.DefaultFuzzyThreshold
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	// Backend
	if cfg.Backend.Token == "" {
		errs = append(errs, fmt.Errorf("backend.token is required (or set $%s)", TokenEnv))
	}
	if cfg.Backend.BaseURL != "" {
		if u, err := url.Parse(cfg.Backend.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("backend.base_url %q must be an absolute http(s) URL", cfg.Backend.BaseURL))
		}
	}
	if cfg.Backend.PollAttempts < 0 {
		errs = append(errs, fmt.Errorf("backend.poll_attempts %d must not be negative", cfg.Backend.PollAttempts))
	}
	if cfg.Backend.PollInterval < 0 || cfg.Backend.Timeout < 0 {
		errs = append(errs, errors.New("backend.poll_interval and backend.timeout must not be negative"))
	}

	// Modes
	for name, m := range map[string]ModeConfig{"explore": cfg.Modes.Explore, "companion": cfg.Modes.Companion} {
		if m.Facing == "" {
			continue
		}
		if _, err := camera.ParseFacing(m.Facing); err != nil {
			errs = append(errs, fmt.Errorf("modes.%s.facing %q is invalid; valid values: environment, user", name, m.Facing))
		}
	}
	if cfg.Modes.Explore.BotID == "" && cfg.Modes.Companion.BotID == "" {
		slog.Warn("no bot_id configured for any mode; the backend will reject turns")
	}

	// VAD
	v := cfg.VAD
	if v.Multiplier < 0 {
		errs = append(errs, fmt.Errorf("vad.multiplier %.2f must not be negative", v.Multiplier))
	}
	for name, th := range map[string]float64{"min_threshold": v.MinThreshold, "max_threshold": v.MaxThreshold, "fixed_threshold": v.FixedThreshold} {
		if th < 0 || th > 1 {
			errs = append(errs, fmt.Errorf("vad.%s %.3f is out of range [0, 1]", name, th))
		}
	}
	if v.MinThreshold > 0 && v.MaxThreshold > 0 && v.MinThreshold > v.MaxThreshold {
		errs = append(errs, fmt.Errorf("vad.min_threshold %.3f exceeds vad.max_threshold %.3f", v.MinThreshold, v.MaxThreshold))
	}
	if v.CalibrationWindow < 0 || v.CalibrationCadence < 0 || v.HoldOff < 0 || v.Tick < 0 {
		errs = append(errs, errors.New("vad durations must not be negative"))
	}

	// Recorder and audio
	if cfg.Recorder.TargetSampleRate < 0 {
		errs = append(errs, fmt.Errorf("recorder.target_sample_rate %d must not be negative", cfg.Recorder.TargetSampleRate))
	}
	if cfg.Recorder.PreRoll < 0 || cfg.Recorder.MaxSegment < 0 {
		errs = append(errs, errors.New("recorder.pre_roll and recorder.max_segment must not be negative"))
	}
	if cfg.Audio.SampleRate < 0 || cfg.Audio.FrameSize < 0 {
		errs = append(errs, errors.New("audio.sample_rate and audio.frame_size must not be negative"))
	}

	// Speech
	for i, voice := range cfg.Speech.Voices {
		prefix := fmt.Sprintf("speech.voices[%d]", i)
		if voice.Engine == "" {
			errs = append(errs, fmt.Errorf("%s.engine is required", prefix))
			continue
		}
		validateEngineName(voice.Engine)
		if voice.Engine == "coqui" && voice.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required for engine coqui", prefix))
		}
		if voice.Rate < 0 || voice.Rate > 4 {
			errs = append(errs, fmt.Errorf("%s.rate %.2f is out of range [0, 4]", prefix, voice.Rate))
		}
	}

	// Farewell
	if t := cfg.Farewell.FuzzyThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("farewell.fuzzy_threshold %.2f is out of range [0, 1]", t))
	}

	if cfg.History.PostgresDSN == "" {
		slog.Debug("history.postgres_dsn is empty; turns are kept in memory only")
	}

	return errors.Join(errs...)
}

// validateEngineName logs a warning if name is not one of
// [ValidSpeechEngines].
func validateEngineName(name string) {
	if slices.Contains(ValidSpeechEngines, name) {
		return
	}
	slog.Warn("unknown speech engine; it must be registered by the application",
		"name", name,
		"known", ValidSpeechEngines,
	)
}
