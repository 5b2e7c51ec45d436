package app_test

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/miniexplorer/internal/app"
	"github.com/MrWong99/miniexplorer/internal/config"
	"github.com/MrWong99/miniexplorer/internal/engine"
	"github.com/MrWong99/miniexplorer/internal/farewell"
	"github.com/MrWong99/miniexplorer/internal/recorder"
	"github.com/MrWong99/miniexplorer/pkg/provider/camera"
)

func TestSlogLevel(t *testing.T) {
	t.Parallel()
	tests := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"":              slog.LevelInfo,
	}
	for in, want := range tests {
		if got := app.SlogLevel(in); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestProfiles(t *testing.T) {
	t.Parallel()
	got := app.Profiles(config.ModesConfig{
		Explore:   config.ModeConfig{BotID: "bot_explore"},
		Companion: config.ModeConfig{BotID: "bot_friend", Prompt: "陪我聊天", Facing: "environment"},
	})

	ex := got[engine.ModeExplore]
	if ex.BotID != "bot_explore" || ex.Prompt != engine.DefaultPrompt || ex.Facing != camera.FacingEnvironment {
		t.Errorf("explore = %+v", ex)
	}
	co := got[engine.ModeCompanion]
	if co.BotID != "bot_friend" || co.Prompt != "陪我聊天" || co.Facing != camera.FacingEnvironment {
		t.Errorf("companion = %+v", co)
	}

	def := app.Profiles(config.ModesConfig{})
	if def[engine.ModeCompanion].Facing != camera.FacingUser {
		t.Errorf("companion default facing = %q, want user", def[engine.ModeCompanion].Facing)
	}
}

func TestVADConfig(t *testing.T) {
	t.Parallel()
	got := app.VADConfig(config.VADConfig{
		CalibrationWindow: time.Second, CalibrationCadence: 50 * time.Millisecond,
		Multiplier: 2.5, MinThreshold: 0.01, MaxThreshold: 0.2, FixedThreshold: 0.05,
		HoldOff: time.Second,
	})
	if got.CalibrationWindow != time.Second || got.Multiplier != 2.5 || got.FixedThreshold != 0.05 || got.MaxThreshold != 0.2 {
		t.Errorf("VADConfig = %+v", got)
	}
}

func TestRecorderOptions(t *testing.T) {
	t.Parallel()
	if n := len(app.RecorderOptions(config.RecorderConfig{})); n != 1 {
		t.Errorf("zero config produced %d options, want 1", n)
	}
	full := config.RecorderConfig{TargetSampleRate: 16000, PreRoll: time.Second, MaxSegment: time.Minute}
	if n := len(app.RecorderOptions(full)); n != 4 {
		t.Errorf("full config produced %d options, want 4", n)
	}
}

func TestRecorderOptions_Strategy(t *testing.T) {
	t.Parallel()
	off, on := false, true
	tests := []struct {
		name string
		cfg  config.RecorderConfig
		want recorder.Strategy
	}{
		{"unset", config.RecorderConfig{}, recorder.StrategyOpus},
		{"enabled", config.RecorderConfig{PreferOpus: &on}, recorder.StrategyOpus},
		{"disabled", config.RecorderConfig{PreferOpus: &off}, recorder.StrategyWAV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec, err := recorder.New(48000, app.RecorderOptions(tt.cfg)...)
			if err != nil {
				t.Fatalf("recorder.New: %v", err)
			}
			if rec.Strategy() != tt.want {
				t.Errorf("Strategy = %q, want %q", rec.Strategy(), tt.want)
			}
		})
	}
}

func TestFarewellThreshold(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.FarewellConfig
		want float64
	}{
		{config.FarewellConfig{}, 0},
		{config.FarewellConfig{FuzzyThreshold: 0.8}, 0},
		{config.FarewellConfig{Fuzzy: true}, farewell.DefaultFuzzyThreshold},
		{config.FarewellConfig{Fuzzy: true, FuzzyThreshold: 0.8}, 0.8},
	}
	for _, tt := range tests {
		if got := app.FarewellThreshold(tt.in); got != tt.want {
			t.Errorf("FarewellThreshold(%+v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFarewellMatcher(t *testing.T) {
	t.Parallel()
	m := app.FarewellMatcher(config.FarewellConfig{Phrases: []string{"回头见"}})
	if !m.IsFarewell("好的，回头见") {
		t.Error("configured phrase not matched")
	}
	if m.IsFarewell("再见") {
		t.Error("configured phrases must replace the defaults")
	}
	if !app.FarewellMatcher(config.FarewellConfig{}).IsFarewell("拜拜") {
		t.Error("default phrases missing")
	}
}

func TestUserID(t *testing.T) {
	t.Parallel()
	if got := app.UserID(config.BackendConfig{UserID: "  kid-42 "}); got != "kid-42" {
		t.Errorf("UserID = %q, want configured id", got)
	}

	a, b := app.DeviceUserID("Kitchen-Tablet"), app.DeviceUserID("kitchen-tablet")
	if a != b {
		t.Errorf("device id depends on host name case: %s vs %s", a, b)
	}
	if a == app.DeviceUserID("bedroom") {
		t.Error("different hosts share an id")
	}
	id, ok := strings.CutPrefix(a, "device-")
	if !ok {
		t.Fatalf("id %q lacks device- prefix", a)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("id %q is not a uuid: %v", id, err)
	}
	if derived := app.UserID(config.BackendConfig{}); !strings.HasPrefix(derived, "device-") {
		t.Errorf("derived UserID = %q", derived)
	}
}
