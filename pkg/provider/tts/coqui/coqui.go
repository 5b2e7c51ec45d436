// Package coqui provides a [tts.Speaker] backed by a locally running Coqui
// TTS server. Synthesised WAV audio is decoded and rendered through an
// [audio.Player].
//
// Two API modes are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is GET /api/tts with URL query
//     parameters.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server. Synthesis is
//     POST /tts_to_audio/ with a JSON body and requires a speaker name.
//
// Speak synthesises synchronously, so an unreachable server is reported to the
// caller and a fallback engine can take over, then plays in the background.
//
//	s, err := coqui.New("http://localhost:5002", player,
//	    coqui.WithLanguage("zh-cn"),
//	)
//	err = s.Speak(ctx, "你好")
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/miniexplorer/pkg/audio"
	"github.com/MrWong99/miniexplorer/pkg/provider/tts"
)

var _ tts.Speaker = (*Speaker)(nil)

const (
	defaultLanguage = "zh-cn"
	defaultTimeout  = 30 * time.Second
	ttsEndpoint     = "/tts_to_audio/"
	apiTTSEndpoint  = "/api/tts"
)

// APIMode selects which Coqui server API the speaker targets.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Speaker.
type Option func(*Speaker)

// WithLanguage sets the language code sent to the server (e.g. "zh-cn").
func WithLanguage(lang string) Option {
	return func(s *Speaker) {
		s.language = lang
	}
}

// WithSpeaker sets the speaker: speaker_id in standard mode, speaker_wav in
// XTTS mode.
func WithSpeaker(id string) Option {
	return func(s *Speaker) {
		s.speaker = id
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(s *Speaker) {
		s.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(s *Speaker) {
		s.apiMode = mode
	}
}

// Speaker speaks through a Coqui server.
type Speaker struct {
	serverURL  string
	language   string
	speaker    string
	apiMode    APIMode
	httpClient *http.Client
	player     audio.Player

	mu     sync.Mutex
	cancel context.CancelFunc
	seq    uint64
}

// New creates a Speaker for the server at serverURL that plays through
// player. Both must be set.
func New(serverURL string, player audio.Player, opts ...Option) (*Speaker, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	if player == nil {
		return nil, errors.New("coqui: player must not be nil")
	}
	s := &Speaker{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
		player:     player,
	}
	for _, o := range opts {
		o(s)
	}
	if s.apiMode == APIModeXTTS && s.speaker == "" {
		return nil, errors.New("coqui: xtts mode requires a speaker")
	}
	return s, nil
}

// Speak implements [tts.Speaker].
func (s *Speaker) Speak(ctx context.Context, text string) error {
	s.Cancel()
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	uctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	samples, rate, err := s.Synthesize(uctx, text)
	if err != nil {
		s.finish(seq, cancel)
		return err
	}

	go func() {
		defer s.finish(seq, cancel)
		if err := s.player.Play(uctx, samples, rate); err != nil && uctx.Err() == nil {
			slog.Warn("coqui: playback failed", "err", err)
		}
	}()
	return nil
}

func (s *Speaker) finish(seq uint64, cancel context.CancelFunc) {
	s.mu.Lock()
	if s.seq == seq {
		s.cancel = nil
	}
	s.mu.Unlock()
	cancel()
}

// Cancel implements [tts.Speaker].
func (s *Speaker) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Synthesize requests text from the server and returns mono samples and
// their rate.
func (s *Speaker) Synthesize(ctx context.Context, text string) ([]float32, int, error) {
	var (
		req *http.Request
		err error
	)
	if s.apiMode == APIModeXTTS {
		req, err = s.xttsRequest(ctx, text)
	} else {
		req, err = s.standardRequest(ctx, text)
	}
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return decode(wav)
}

func (s *Speaker) standardRequest(ctx context.Context, text string) (*http.Request, error) {
	params := url.Values{}
	params.Set("text", text)
	if s.speaker != "" {
		params.Set("speaker_id", s.speaker)
	}
	if s.language != "" {
		params.Set("language_id", s.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	return req, nil
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

func (s *Speaker) xttsRequest(ctx context.Context, text string) (*http.Request, error) {
	body, err := json.Marshal(ttsRequest{Text: text, SpeakerWav: s.speaker, Language: s.language})
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+ttsEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// decode converts a 16-bit PCM WAV body to mono float samples. Multi-channel
// audio is down-mixed by averaging.
func decode(wav []byte) ([]float32, int, error) {
	info, err := audio.ParseWAV(wav)
	if err != nil {
		return nil, 0, fmt.Errorf("coqui: %w", err)
	}
	if info.FormatTag != 1 || info.BitsPerSample != 16 {
		return nil, 0, fmt.Errorf("coqui: unsupported WAV format tag %d with %d bits", info.FormatTag, info.BitsPerSample)
	}
	end := min(info.DataOffset+info.DataSize, len(wav))
	samples := audio.Float32FromPCM16(wav[info.DataOffset:end])

	ch := info.Channels
	if ch <= 1 {
		return samples, info.SampleRate, nil
	}
	mono := make([]float32, len(samples)/ch)
	for i := range mono {
		var sum float32
		for c := range ch {
			sum += samples[i*ch+c]
		}
		mono[i] = sum / float32(ch)
	}
	return mono, info.SampleRate, nil
}
