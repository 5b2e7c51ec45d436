// Package system implements [tts.Speaker] with the host's command-line speech
// engines: macOS "say", "espeak-ng" and speech-dispatcher's "spd-say".
//
// Each utterance runs one child process. Speak kills the previous process
// before starting the next, so at most one utterance is audible.
//
//	s, err := system.New(system.EngineEspeak, system.WithVoice(tts.Voice{Language: "zh-CN"}))
//	_ = s.Speak(ctx, "你好")
package system

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/miniexplorer/pkg/provider/tts"
)

// Engine names a supported command-line speech engine.
type Engine string

const (
	EngineSay    Engine = "say"
	EngineEspeak Engine = "espeak-ng"
	EngineSpdSay Engine = "spd-say"
)

// Engines lists the supported engines in their default preference order.
var Engines = []Engine{EngineSay, EngineEspeak, EngineSpdSay}

// Normal speaking rates in words per minute.
const (
	sayWPM    = 175
	espeakWPM = 175
)

var _ tts.Speaker = (*Speaker)(nil)

// Option is a functional option for [New].
type Option func(*Speaker)

// WithVoice sets the voice. Defaults to zh-CN at normal rate.
func WithVoice(v tts.Voice) Option {
	return func(s *Speaker) {
		s.voice = v.WithDefaults()
	}
}

// WithBinary overrides the executable path. Arguments are still built for
// the Speaker's engine.
func WithBinary(path string) Option {
	return func(s *Speaker) {
		if path != "" {
			s.binary = path
		}
	}
}

// Speaker speaks through a command-line engine.
type Speaker struct {
	engine Engine
	binary string
	voice  tts.Voice

	mu     sync.Mutex
	cancel context.CancelFunc
	seq    uint64
}

// New returns a Speaker for engine. It fails with [tts.ErrUnsupported] when
// the engine's executable cannot be found.
func New(engine Engine, opts ...Option) (*Speaker, error) {
	switch engine {
	case EngineSay, EngineEspeak, EngineSpdSay:
	default:
		return nil, fmt.Errorf("system: unknown engine %q", engine)
	}
	s := &Speaker{
		engine: engine,
		binary: string(engine),
		voice:  tts.Voice{}.WithDefaults(),
	}
	for _, o := range opts {
		o(s)
	}
	resolved, err := exec.LookPath(s.binary)
	if err != nil {
		return nil, fmt.Errorf("system: %s: %w: %w", engine, tts.ErrUnsupported, err)
	}
	s.binary = resolved
	return s, nil
}

// Engine returns the engine this Speaker drives.
func (s *Speaker) Engine() Engine { return s.engine }

// Speak implements [tts.Speaker].
func (s *Speaker) Speak(ctx context.Context, text string) error {
	s.Cancel()
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	uctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(uctx, s.binary, Args(s.engine, s.voice, text)...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("system: start %s: %w", s.engine, err)
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		err := cmd.Wait()
		if err != nil && uctx.Err() == nil {
			slog.Warn("system: utterance failed", "engine", s.engine, "err", err)
		}
		s.mu.Lock()
		if s.seq == seq {
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel()
	}()
	return nil
}

// Cancel implements [tts.Speaker].
func (s *Speaker) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if s.engine == EngineSpdSay {
		// Killing the client leaves speech-dispatcher talking.
		_ = exec.Command(s.binary, "-C").Run()
	}
}

// Speaking reports whether an utterance process is still running.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Args returns the command-line arguments that make engine speak text with
// voice.
func Args(engine Engine, voice tts.Voice, text string) []string {
	voice = voice.WithDefaults()
	var args []string
	switch engine {
	case EngineSay:
		name := voice.Name
		if name == "" {
			name = sayVoice(voice.Language)
		}
		if name != "" {
			args = append(args, "-v", name)
		}
		args = append(args, "-r", strconv.Itoa(int(math.Round(sayWPM*voice.Rate))))
	case EngineEspeak:
		name := voice.Name
		if name == "" {
			name = espeakVoice(voice.Language)
		}
		args = append(args, "-v", name, "-s", strconv.Itoa(int(math.Round(espeakWPM*voice.Rate))))
	case EngineSpdSay:
		rate := int(math.Round((voice.Rate - 1) * 100))
		rate = max(-100, min(100, rate))
		args = append(args, "-w", "-l", primaryLanguage(voice.Language), "-r", strconv.Itoa(rate))
		if voice.Name != "" {
			args = append(args, "-y", voice.Name)
		}
	}
	return append(args, text)
}

func primaryLanguage(tag string) string {
	lang, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(lang)
}

func sayVoice(tag string) string {
	switch strings.ToLower(tag) {
	case "zh-cn", "zh":
		return "Tingting"
	case "zh-tw":
		return "Meijia"
	case "zh-hk":
		return "Sinji"
	default:
		return ""
	}
}

func espeakVoice(tag string) string {
	switch strings.ToLower(tag) {
	case "zh-cn", "zh", "zh-tw":
		return "cmn"
	case "zh-hk":
		return "yue"
	default:
		return strings.ToLower(tag)
	}
}
