// Package engine runs the hands-free conversation loop.
//
// An [Engine] owns at most one mode session at a time and moves it through
// the conversation cycle:
//
//	Booting ──EnterMode──▶ NeedPermission ──StartAfterUserGesture──▶ Booting ──▶ Listening
//	Listening ──voice──▶ Recording ──silence > hold-off──▶ Thinking ──reply──▶ Speaking
//	Thinking/Speaking ──settle delay──▶ Listening
//
// Hardware is only touched after the user gesture. The microphone is
// mandatory: any failure while acquiring it, or while calibrating the voice
// activity detector against it, moves the engine to [StateError] where it
// stays until the next gesture. The camera is optional; without it turns are
// sent without a frame and a hint is shown.
//
// Three goroutines serve an active session: the frame pump feeds the
// analyser and the segment recorder, the tick loop polls the detector and
// opens and closes segments, and a turn goroutine per closed segment runs the
// remote round trip so that ticks never block on the network. A new segment
// is never opened while a round trip is outstanding.
//
// Every session carries a generation number. Stop (or a farewell reply)
// bumps it, so results that arrive late from a torn-down session are
// discarded instead of leaking into the next one.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/miniexplorer/internal/farewell"
	"github.com/MrWong99/miniexplorer/internal/observe"
	"github.com/MrWong99/miniexplorer/internal/recorder"
	"github.com/MrWong99/miniexplorer/pkg/audio"
	"github.com/MrWong99/miniexplorer/pkg/provider/camera"
	"github.com/MrWong99/miniexplorer/pkg/provider/chat"
	"github.com/MrWong99/miniexplorer/pkg/provider/tts"
	"github.com/MrWong99/miniexplorer/pkg/provider/vad"
)

// Timing defaults.
const (
	DefaultTick    = 16 * time.Millisecond
	DefaultHoldOff = 800 * time.Millisecond
	DefaultSettle  = 600 * time.Millisecond
)

var (
	// ErrNotReady is returned by StartAfterUserGesture when no mode was
	// entered or a session is already running.
	ErrNotReady = errors.New("engine: not waiting for a user gesture")

	// ErrStopped is returned by StartAfterUserGesture when the session was
	// torn down while devices were being acquired.
	ErrStopped = errors.New("engine: session stopped")

	// ErrSignalLost moves the engine to [StateError] when the microphone
	// stream ends on its own.
	ErrSignalLost = errors.New("engine: microphone signal lost")
)

// Config holds the collaborators of an [Engine]. Microphone, Speaker, Chat
// and VAD are required.
type Config struct {
	Microphone audio.Microphone

	// Camera is optional. Without it every turn is sent audio-only.
	Camera camera.Provider

	Speaker tts.Speaker
	Chat    chat.Client
	VAD     vad.Engine

	// Host is notified after a farewell. Optional.
	Host Host
}

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithObserver adds an event observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithProfiles replaces the per-mode profiles. Modes missing from profiles
// cannot be entered.
func WithProfiles(profiles map[Mode]Profile) Option {
	return func(e *Engine) {
		e.profiles = make(map[Mode]Profile, len(profiles))
		for m, p := range profiles {
			if p.Prompt == "" {
				p.Prompt = DefaultPrompt
			}
			e.profiles[m] = p
		}
	}
}

// WithVADConfig sets the calibration parameters of every session's detector.
func WithVADConfig(cfg vad.Config) Option {
	return func(e *Engine) {
		e.vadCfg = cfg
	}
}

// WithTickInterval sets how often the detector is polled. Defaults to 16 ms.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tick = d
		}
	}
}

// WithHoldOff sets how much silence closes a segment. Defaults to 800 ms.
func WithHoldOff(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.holdOff = d
		}
	}
}

// WithSettleDelay sets the pause between a finished turn and listening
// again. Defaults to 600 ms.
func WithSettleDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.settle = d
		}
	}
}

// WithRecorderOptions configures the per-session segment recorder.
func WithRecorderOptions(opts ...recorder.Option) Option {
	return func(e *Engine) {
		e.recOpts = append(e.recOpts, opts...)
	}
}

// WithAnalyserSize sets the number of samples the level analyser averages.
func WithAnalyserSize(n int) Option {
	return func(e *Engine) {
		e.analyserSize = n
	}
}

// WithFarewell sets the farewell matcher. Defaults to [farewell.New].
func WithFarewell(m *farewell.Matcher) Option {
	return func(e *Engine) {
		if m != nil {
			e.farewell = m
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// Engine is the conversation state machine. All exported methods are safe
// for concurrent use.
type Engine struct {
	mic       audio.Microphone
	cam       camera.Provider
	speaker   tts.Speaker
	chat      chat.Client
	vadEngine vad.Engine
	host      Host

	observers    []Observer
	profiles     map[Mode]Profile
	vadCfg       vad.Config
	tick         time.Duration
	holdOff      time.Duration
	settle       time.Duration
	recOpts      []recorder.Option
	analyserSize int
	farewell     *farewell.Matcher
	metrics      *observe.Metrics

	// speakMu orders Speak against the Cancel issued by Stop.
	speakMu sync.Mutex

	mu        sync.Mutex
	state     State
	mode      Mode
	facing    camera.Facing
	hint      string
	gen       uint64
	sess      *session
	lastFrame []byte
	lastReply string
}

// session holds the resources of one started mode. Fields below the marker
// are guarded by Engine.mu.
type session struct {
	gen     uint64
	mode    Mode
	facing  camera.Facing
	profile Profile
	ctx     context.Context
	cancel  context.CancelFunc

	// loop tracks the tick loop so teardown can wait for it.
	loop sync.WaitGroup

	// --- guarded by Engine.mu ---

	signal     audio.Signal
	analyser   *audio.Analyser
	rec        *recorder.Recorder
	det        vad.Detector
	camOn      bool
	active     bool
	recording  bool
	processing bool
	seg        *segment
	turnSeq    uint64
	settle     *time.Timer
}

// segment is one open or closing utterance.
type segment struct {
	// captured is closed once the best-effort frame capture finished;
	// frame is valid after that.
	captured chan struct{}
	frame    []byte
}

// New creates an Engine in [StateBooting].
func New(cfg Config, opts ...Option) (*Engine, error) {
	var errs []error
	if cfg.Microphone == nil {
		errs = append(errs, errors.New("microphone is required"))
	}
	if cfg.Speaker == nil {
		errs = append(errs, errors.New("speaker is required"))
	}
	if cfg.Chat == nil {
		errs = append(errs, errors.New("chat client is required"))
	}
	if cfg.VAD == nil {
		errs = append(errs, errors.New("vad engine is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		mic:       cfg.Microphone,
		cam:       cfg.Camera,
		speaker:   cfg.Speaker,
		chat:      cfg.Chat,
		vadEngine: cfg.VAD,
		host:      cfg.Host,
		profiles:  DefaultProfiles(),
		tick:      DefaultTick,
		holdOff:   DefaultHoldOff,
		settle:    DefaultSettle,
		state:     StateBooting,
	}
	for _, o := range opts {
		o(e)
	}
	if e.farewell == nil {
		e.farewell = farewell.New()
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e, nil
}

// EnterMode tears down any running session and waits for a user gesture in
// mode. An empty facing selects the mode profile's camera.
func (e *Engine) EnterMode(ctx context.Context, mode Mode, facing camera.Facing) error {
	profile, ok := e.profiles[mode]
	if !ok {
		return fmt.Errorf("engine: enter mode: unknown mode %q", mode)
	}
	e.Stop()

	if facing == "" {
		facing = profile.Facing
	}
	if facing == "" {
		facing = camera.FacingEnvironment
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = mode
	e.facing = facing
	e.setStateLocked(ctx, StateNeedPermission, nil)
	return nil
}

// StartAfterUserGesture acquires the devices, calibrates the detector and
// starts listening. It is valid in [StateNeedPermission] and, to retry after
// a device failure, in [StateError].
//
// A microphone, recorder or calibration failure moves the engine to
// [StateError] and is returned. A camera failure only shows [CameraHint].
// Stop, or cancelling ctx, aborts a pending acquisition.
func (e *Engine) StartAfterUserGesture(ctx context.Context) error {
	e.mu.Lock()
	if e.mode == "" || e.sess != nil || (e.state != StateNeedPermission && e.state != StateError) {
		st := e.state
		e.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrNotReady, st)
	}
	e.gen++
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{
		gen:     e.gen,
		mode:    e.mode,
		facing:  e.facing,
		profile: e.profiles[e.mode],
		ctx:     sctx,
		cancel:  cancel,
	}
	e.sess = s
	e.setStateLocked(sctx, StateBooting, nil)
	e.mu.Unlock()

	actx, abort := context.WithCancel(ctx)
	defer abort()
	defer context.AfterFunc(sctx, abort)()

	return e.boot(actx, s)
}

func (e *Engine) boot(ctx context.Context, s *session) error {
	log := slog.With("mode", s.mode, "facing", s.facing, "session", s.gen)

	sig, err := e.mic.Acquire(ctx)
	if err != nil {
		return e.bootFailed(s, fmt.Errorf("engine: acquire microphone: %w", err))
	}
	if !e.attach(s, func() { s.signal = sig }) {
		_ = e.mic.Release(sig)
		return ErrStopped
	}

	hint := CameraHint
	if e.cam != nil {
		if err := e.cam.Start(ctx, s.facing); err != nil {
			log.Warn("engine: camera unavailable, continuing without frames", "err", err)
		} else if !e.attach(s, func() { s.camOn = true }) {
			_ = e.cam.Stop()
			return ErrStopped
		} else {
			hint = ""
		}
	}
	if !e.attach(s, func() { e.setHintLocked(hint) }) {
		return ErrStopped
	}

	// An empty utterance primes the speech engine.
	e.speak(ctx, s, "")

	rec, err := recorder.New(sig.SampleRate(), e.recOpts...)
	if err != nil {
		return e.bootFailed(s, fmt.Errorf("engine: create recorder: %w", err))
	}
	an := audio.NewAnalyser(e.analyserSize)
	if !e.attach(s, func() { s.rec, s.analyser = rec, an }) {
		return ErrStopped
	}
	go e.pump(s, sig, an, rec)

	det, err := e.vadEngine.NewDetector(e.vadCfg)
	if err != nil {
		return e.bootFailed(s, fmt.Errorf("engine: create detector: %w", err))
	}
	threshold, err := det.Calibrate(ctx, an)
	if err != nil {
		return e.bootFailed(s, fmt.Errorf("engine: calibrate: %w", err))
	}
	e.metrics.VADThreshold.Record(s.ctx, threshold)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != s {
		return ErrStopped
	}
	s.det = det
	s.active = true
	e.metrics.ActiveSessions.Add(s.ctx, 1)
	e.setStateLocked(s.ctx, StateListening, nil)
	s.loop.Go(func() { e.loop(s) })

	log.Info("engine: listening",
		"threshold", threshold,
		"strategy", rec.Strategy(),
		"capture_rate", sig.SampleRate(),
		"camera", hint == "",
	)
	return nil
}

// bootFailed moves a current session to StateError. A session that was
// stopped meanwhile reports ErrStopped instead.
func (e *Engine) bootFailed(s *session, err error) error {
	if !e.teardown(s, StateError, err) {
		return fmt.Errorf("%w: %w", ErrStopped, err)
	}
	slog.Error("engine: start failed", "mode", s.mode, "err", err)
	return err
}

// attach runs fn under the state lock if s is still the current session.
func (e *Engine) attach(s *session, fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != s {
		return false
	}
	fn()
	return true
}

// pump feeds every captured frame to the analyser and the recorder until
// the session ends or the signal closes.
func (e *Engine) pump(s *session, sig audio.Signal, an *audio.Analyser, rec *recorder.Recorder) {
	frames := sig.Frames()
	for {
		select {
		case <-s.ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				if s.ctx.Err() == nil {
					if e.teardown(s, StateError, ErrSignalLost) {
						slog.Error("engine: microphone stream ended", "mode", s.mode)
					}
				}
				return
			}
			an.Write(f.Samples)
			rec.OnData(f)
		}
	}
}

func (e *Engine) loop(s *session) {
	t := time.NewTicker(e.tick)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-t.C:
			e.step(s, now)
		}
	}
}

// step runs one detector poll.
func (e *Engine) step(s *session, now time.Time) {
	res := s.det.Tick(now, s.analyser)

	e.mu.Lock()
	if e.sess != s {
		e.mu.Unlock()
		return
	}
	if res.IsVoice && !s.recording && !s.processing {
		e.beginSegmentLocked(s)
		e.mu.Unlock()
		return
	}
	if !s.recording {
		e.mu.Unlock()
		return
	}
	full := s.rec.Full()
	if !full && s.det.SilentFor(now) <= e.holdOff {
		e.mu.Unlock()
		return
	}
	s.recording = false
	seg := s.seg
	s.seg = nil
	// The next segment measures its hold-off from fresh voice.
	s.det.Reset()
	e.mu.Unlock()

	e.endSegment(s, seg, full)
}

func (e *Engine) beginSegmentLocked(s *session) {
	if err := s.rec.BeginSegment(); err != nil {
		slog.Warn("engine: cannot open segment", "mode", s.mode, "err", err)
		e.metrics.RecordSegment(s.ctx, "error")
		return
	}
	seg := &segment{captured: make(chan struct{})}
	s.recording = true
	s.seg = seg
	e.setStateLocked(s.ctx, StateRecording, nil)
	go e.captureFrame(s, seg, s.camOn)
}

// captureFrame grabs the frame that accompanies seg. Failure only shows the
// camera hint; the turn is then sent audio-only.
func (e *Engine) captureFrame(s *session, seg *segment, camOn bool) {
	defer close(seg.captured)
	if !camOn {
		return
	}
	frame, err := e.cam.CaptureFrame(s.ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != s {
		return
	}
	if err != nil {
		slog.Warn("engine: frame capture failed", "mode", s.mode, "err", err)
		e.setHintLocked(CameraHint)
		return
	}
	seg.frame = frame
	e.lastFrame = frame
	if e.hint == CameraHint {
		e.setHintLocked("")
	}
}

// endSegment finalises the recorder outside the state lock and decides
// whether a round trip follows.
func (e *Engine) endSegment(s *session, seg *segment, forced bool) {
	start := time.Now()
	clip, ok, err := s.rec.EndSegment()
	if ok {
		e.metrics.RecordStage(s.ctx, observe.StageEncode, time.Since(start))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != s {
		return
	}
	switch {
	case err != nil:
		slog.Warn("engine: encoding failed, segment dropped", "mode", s.mode, "err", err)
		e.metrics.RecordSegment(s.ctx, "error")
		e.setStateLocked(s.ctx, StateListening, nil)
	case !ok:
		e.metrics.RecordSegment(s.ctx, "empty")
		e.setStateLocked(s.ctx, StateListening, nil)
	default:
		outcome := "clip"
		if forced {
			outcome = "forced"
		}
		e.metrics.RecordSegment(s.ctx, outcome)
		s.processing = true
		s.turnSeq++
		seq := s.turnSeq
		e.setStateLocked(s.ctx, StateThinking, nil)
		go e.runTurn(s, seq, seg, clip)
	}
}

// runTurn performs one round trip for clip and hands the result to
// finishTurn.
func (e *Engine) runTurn(s *session, seq uint64, seg *segment, clip recorder.Clip) {
	ctx, span := observe.StartSpan(s.ctx, "engine.turn",
		trace.WithAttributes(
			attribute.String("mode", string(s.mode)),
			attribute.Int("audio_bytes", len(clip.Data)),
		),
	)
	defer span.End()

	select {
	case <-seg.captured:
	case <-ctx.Done():
		return
	}

	turn := chat.Turn{
		Audio:  &chat.Media{Kind: chat.MediaAudio, Data: clip.Data, MIMEType: clip.MIMEType},
		Prompt: s.profile.Prompt,
		BotID:  s.profile.BotID,
	}
	if seg.frame != nil {
		turn.Image = &chat.Media{Kind: chat.MediaImage, Data: seg.frame, MIMEType: "image/jpeg"}
	}

	sum := &TurnSummary{
		Mode:       s.mode,
		AudioBytes: len(clip.Data),
		AudioMIME:  clip.MIMEType,
		AudioLen:   clip.Duration,
		HasImage:   turn.Image != nil,
		StartedAt:  time.Now(),
		TraceID:    observe.CorrelationID(ctx),
	}
	res, err := chat.RunTurn(ctx, e.chat, turn, func(stage chat.Stage, d time.Duration, _ error) {
		e.metrics.RecordStage(ctx, string(stage), d)
	})
	sum.Duration = time.Since(sum.StartedAt)
	sum.ChatID = res.Session.ChatID
	sum.ConversationID = res.Session.ConversationID
	sum.Status = res.Outcome.Status
	if err != nil {
		sum.Err = err
		sum.ErrKind = chat.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	e.finishTurn(ctx, s, seq, sum, res)
}

// finishTurn applies a round-trip result: error hint, reply and playback,
// farewell teardown, settle timer. Results for a stale session are dropped.
func (e *Engine) finishTurn(ctx context.Context, s *session, seq uint64, sum *TurnSummary, res chat.Result) {
	log := observe.Logger(ctx).With("mode", s.mode, "chat_id", sum.ChatID)

	e.mu.Lock()
	if e.sess != s || s.turnSeq != seq {
		e.mu.Unlock()
		log.Debug("engine: discarding result of a stopped session")
		return
	}
	s.processing = false

	reply := strings.TrimSpace(res.Reply)
	status := "ok"
	switch {
	case sum.Err != nil:
		status = "error"
		e.metrics.RecordBackendError(ctx, sum.ErrKind.String())
		log.Warn("engine: turn failed", "kind", sum.ErrKind, "err", sum.Err)
		e.setHintLocked(TurnErrorHint(sum.Err))
		reply = ""
	case res.HasReply && reply != "":
		sum.Reply, sum.HasReply = reply, true
		_, sum.Farewell = e.farewell.Match(reply)
		e.lastReply = reply
		e.emitLocked(Event{Kind: EventReply, Reply: reply, TraceID: sum.TraceID})
		e.setStateLocked(ctx, StateSpeaking, nil)
	default:
		status = "empty"
		reply = ""
		log.Info("engine: backend returned no text")
	}
	e.metrics.RecordTurn(ctx, status, sum.Duration)
	e.emitLocked(Event{Kind: EventTurn, Turn: sum, TraceID: sum.TraceID})
	if !sum.Farewell {
		e.scheduleSettleLocked(s, seq)
	}
	e.mu.Unlock()

	if reply != "" {
		// Playback must outlive the session so a farewell is still heard.
		e.speak(context.WithoutCancel(ctx), s, reply)
	}
	if sum.Farewell && e.teardown(s, StateBooting, nil) {
		log.Info("engine: farewell, returning home")
		if e.host != nil {
			e.host.NavigateHome()
		}
	}
}

// speak plays text unless s was stopped. Errors are logged and ignored.
func (e *Engine) speak(ctx context.Context, s *session, text string) {
	e.speakMu.Lock()
	defer e.speakMu.Unlock()
	e.mu.Lock()
	current := e.sess == s
	e.mu.Unlock()
	if !current {
		return
	}
	if err := e.speaker.Speak(ctx, text); err != nil {
		slog.Warn("engine: speech failed", "mode", s.mode, "err", err)
	}
}

func (e *Engine) scheduleSettleLocked(s *session, seq uint64) {
	if s.settle != nil {
		s.settle.Stop()
	}
	s.settle = time.AfterFunc(e.settle, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.sess != s || s.turnSeq != seq || s.recording || s.processing {
			return
		}
		if e.state == StateThinking || e.state == StateSpeaking {
			e.setStateLocked(s.ctx, StateListening, nil)
		}
	})
}

// Stop tears down the running session, cancels speech and returns the
// engine to the [StateBooting] baseline. Calling Stop without a session only
// resets the baseline.
func (e *Engine) Stop() {
	e.mu.Lock()
	s := e.sess
	e.mu.Unlock()

	if s == nil || !e.teardown(s, StateBooting, nil) {
		e.mu.Lock()
		e.gen++
		e.resetLocked(context.Background())
		e.mu.Unlock()
	}

	e.speakMu.Lock()
	e.speaker.Cancel()
	e.speakMu.Unlock()
}

// teardown releases s and moves to final: StateBooting for a clean stop or
// StateError with cause. It reports false when s was no longer current.
func (e *Engine) teardown(s *session, final State, cause error) bool {
	e.mu.Lock()
	if e.sess != s {
		e.mu.Unlock()
		return false
	}
	e.sess = nil
	e.gen++
	if s.settle != nil {
		s.settle.Stop()
	}
	if s.recording {
		e.metrics.RecordSegment(s.ctx, "discarded")
	}
	sig, an, rec, camOn, active := s.signal, s.analyser, s.rec, s.camOn, s.active
	s.recording, s.processing, s.seg = false, false, nil
	if final == StateError {
		e.setStateLocked(s.ctx, StateError, cause)
	} else {
		e.resetLocked(s.ctx)
	}
	e.mu.Unlock()

	s.cancel()
	s.loop.Wait()

	if rec != nil {
		rec.Discard()
	}
	if an != nil {
		an.Close()
	}
	if sig != nil {
		if err := e.mic.Release(sig); err != nil {
			slog.Warn("engine: release microphone", "err", err)
		} else {
			audio.Drain(sig.Frames())
		}
	}
	if camOn {
		if err := e.cam.Stop(); err != nil {
			slog.Warn("engine: stop camera", "err", err)
		}
	}
	if active {
		e.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	return true
}

// resetLocked returns to the pre-Booting baseline: no mode, no hint.
func (e *Engine) resetLocked(ctx context.Context) {
	e.setHintLocked("")
	e.setStateLocked(ctx, StateBooting, nil)
	e.mode = ""
	e.facing = ""
}

func (e *Engine) setStateLocked(ctx context.Context, st State, cause error) {
	prev := e.state
	if prev == st && cause == nil {
		return
	}
	e.state = st
	e.metrics.RecordTransition(ctx, prev.String(), st.String())
	if cause != nil {
		slog.Info("engine: state", "from", prev, "to", st, "mode", e.mode, "err", cause)
	} else {
		slog.Debug("engine: state", "from", prev, "to", st, "mode", e.mode)
	}
	e.emitLocked(Event{Kind: EventState, State: st, Prev: prev, Err: cause})
}

func (e *Engine) setHintLocked(hint string) {
	if e.hint == hint {
		return
	}
	e.hint = hint
	e.emitLocked(Event{Kind: EventCameraHint, Hint: hint})
}

func (e *Engine) emitLocked(ev Event) {
	ev.Mode = e.mode
	ev.At = time.Now()
	for _, o := range e.observers {
		o.OnEvent(ev)
	}
}

// Status is a snapshot of the engine for the UI and health checks.
type Status struct {
	State     State
	Mode      Mode
	Facing    camera.Facing
	Hint      string
	LastReply string

	// Threshold is the calibrated detector threshold, zero before
	// calibration.
	Threshold float64
}

// Status returns the current snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		State:     e.state,
		Mode:      e.mode,
		Facing:    e.facing,
		Hint:      e.hint,
		LastReply: e.lastReply,
	}
	if e.sess != nil && e.sess.det != nil {
		st.Threshold = e.sess.det.State().Threshold
	}
	return st
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastFrame returns the most recently captured camera frame, or nil.
func (e *Engine) LastFrame() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastFrame
}
