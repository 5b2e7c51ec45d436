package app

import (
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/MrWong99/miniexplorer/internal/config"
	"github.com/MrWong99/miniexplorer/internal/engine"
	"github.com/MrWong99/miniexplorer/internal/farewell"
	"github.com/MrWong99/miniexplorer/internal/recorder"
	"github.com/MrWong99/miniexplorer/pkg/provider/camera"
	"github.com/MrWong99/miniexplorer/pkg/provider/vad"
)

// SlogLevel converts a configured log level.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Profiles converts the per-mode configuration. Invalid facings have been
// rejected by validation and fall back to the mode default here.
func Profiles(m config.ModesConfig) map[engine.Mode]engine.Profile {
	out := engine.DefaultProfiles()
	for mode, mc := range map[engine.Mode]config.ModeConfig{
		engine.ModeExplore:   m.Explore,
		engine.ModeCompanion: m.Companion,
	} {
		p := out[mode]
		p.BotID = mc.BotID
		if mc.Prompt != "" {
			p.Prompt = mc.Prompt
		}
		if mc.Facing != "" {
			if f, err := camera.ParseFacing(mc.Facing); err == nil {
				p.Facing = f
			}
		}
		out[mode] = p
	}
	return out
}

// VADConfig converts the calibration settings.
func VADConfig(c config.VADConfig) vad.Config {
	return vad.Config{
		CalibrationWindow:  c.CalibrationWindow,
		CalibrationCadence: c.CalibrationCadence,
		Multiplier:         c.Multiplier,
		MinThreshold:       c.MinThreshold,
		MaxThreshold:       c.MaxThreshold,
		FixedThreshold:     c.FixedThreshold,
	}
}

// RecorderOptions converts the clip encoding settings.
func RecorderOptions(c config.RecorderConfig) []recorder.Option {
	opts := []recorder.Option{recorder.WithOpus(c.OpusEnabled())}
	if c.TargetSampleRate > 0 {
		opts = append(opts, recorder.WithTargetRate(c.TargetSampleRate))
	}
	if c.PreRoll > 0 {
		opts = append(opts, recorder.WithPreRoll(c.PreRoll))
	}
	if c.MaxSegment > 0 {
		opts = append(opts, recorder.WithMaxSegment(c.MaxSegment))
	}
	return opts
}

// FarewellThreshold is the fuzzy threshold to pass to
// [farewell.Matcher.Update]: zero when fuzzy matching is off.
func FarewellThreshold(c config.FarewellConfig) float64 {
	if !c.Fuzzy {
		return 0
	}
	if c.FuzzyThreshold <= 0 {
		return farewell.DefaultFuzzyThreshold
	}
	return c.FuzzyThreshold
}

// FarewellMatcher builds the matcher for c.
func FarewellMatcher(c config.FarewellConfig) *farewell.Matcher {
	var opts []farewell.Option
	if len(c.Phrases) > 0 {
		opts = append(opts, farewell.WithPhrases(c.Phrases...))
	}
	if t := FarewellThreshold(c); t > 0 {
		opts = append(opts, farewell.WithFuzzy(t))
	}
	return farewell.New(opts...)
}

// userIDSpace scopes derived device ids.
var userIDSpace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("miniexplorer.local"))

// UserID returns the configured backend user id, or one derived from the
// host name that stays the same across restarts.
func UserID(c config.BackendConfig) string {
	if id := strings.TrimSpace(c.UserID); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown-host"
	}
	return DeviceUserID(host)
}

// DeviceUserID derives a stable user id from a host name.
func DeviceUserID(host string) string {
	return "device-" + uuid.NewSHA1(userIDSpace, []byte(strings.ToLower(host))).String()
}
