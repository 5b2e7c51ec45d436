// Package app wires all MiniExplorer subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the control server, the command line and the
// history writer, and Shutdown tears everything down in order.
//
// For testing, inject mock providers through [Providers] and test doubles
// through functional options (WithHistoryStore, WithEngineOptions, etc.).
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/miniexplorer/internal/config"
	"github.com/MrWong99/miniexplorer/internal/engine"
	"github.com/MrWong99/miniexplorer/internal/farewell"
	"github.com/MrWong99/miniexplorer/internal/health"
	"github.com/MrWong99/miniexplorer/internal/history"
	"github.com/MrWong99/miniexplorer/internal/observe"
	"github.com/MrWong99/miniexplorer/internal/resilience"
	"github.com/MrWong99/miniexplorer/internal/ui"
	"github.com/MrWong99/miniexplorer/pkg/audio"
	"github.com/MrWong99/miniexplorer/pkg/provider/camera"
	"github.com/MrWong99/miniexplorer/pkg/provider/chat"
	"github.com/MrWong99/miniexplorer/pkg/provider/tts"
	"github.com/MrWong99/miniexplorer/pkg/provider/vad"
)

// shutdownTimeout bounds the control server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Providers holds the device and backend implementations. Populated by
// main.go from the config and the speech registry.
type Providers struct {
	Microphone audio.Microphone

	// Camera is nil when disabled.
	Camera camera.Provider

	Chat chat.Client
	VAD  vad.Engine

	// Speakers are tried in order; SpeakerNames labels them in logs.
	Speakers     []tts.Speaker
	SpeakerNames []string
}

// App owns all subsystem lifetimes.
type App struct {
	providers *Providers

	// Set through options.
	level      *slog.LevelVar
	metrics    *observe.Metrics
	store      history.Store
	input      io.Reader
	output     io.Writer
	watcher    *config.Watcher
	engineOpts []engine.Option

	cfgMu sync.Mutex
	cfg   *config.Config

	// Subsystems, initialised in New.
	chat     *resilience.ChatClient
	speaker  *resilience.SpeakerFallback
	farewell *farewell.Matcher
	engine   *engine.Engine
	sessions *SessionManager
	hub      *ui.Hub
	recorder *history.Recorder
	health   *health.Handler
	handler  http.Handler

	addrMu sync.Mutex
	addr   net.Addr

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithHistoryStore injects a history store instead of creating one from
// config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLogLevel lets configuration reloads change the level of the default
// logger's handler.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithCommandInput reads commands from r during Run and writes responses to
// w.
func WithCommandInput(r io.Reader, w io.Writer) Option {
	return func(a *App) {
		a.input = r
		a.output = w
	}
}

// WithWatcher runs w during Run. Its change callback should call
// [App.ApplyConfig].
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithEngineOptions appends engine options after those derived from config.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(a *App) { a.engineOpts = append(a.engineOpts, opts...) }
}

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := checkProviders(providers); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a := &App{cfg: cfg, providers: providers, output: io.Discard}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
	}
	a.level.Set(SlogLevel(cfg.Server.LogLevel))

	// ── 1. Backend client behind a circuit breaker ───────────────────────
	a.chat = resilience.NewChatClient(providers.Chat, resilience.CircuitBreakerConfig{Name: "backend"})

	// ── 2. Speech engines in preference order ────────────────────────────
	a.initSpeech()

	// ── 3. Turn history ──────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 4. Engine, session manager and UI hub ────────────────────────────
	if err := a.initEngine(); err != nil {
		return nil, fmt.Errorf("app: init engine: %w", err)
	}

	// ── 5. Control server routes ─────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

func checkProviders(p *Providers) error {
	if p == nil {
		return errors.New("providers are required")
	}
	var errs []error
	if p.Microphone == nil {
		errs = append(errs, errors.New("microphone is required"))
	}
	if p.Chat == nil {
		errs = append(errs, errors.New("chat client is required"))
	}
	if p.VAD == nil {
		errs = append(errs, errors.New("vad engine is required"))
	}
	if len(p.Speakers) == 0 {
		errs = append(errs, errors.New("at least one speech engine is required"))
	}
	if len(p.SpeakerNames) != 0 && len(p.SpeakerNames) != len(p.Speakers) {
		errs = append(errs, fmt.Errorf("%d speaker names for %d speakers", len(p.SpeakerNames), len(p.Speakers)))
	}
	return errors.Join(errs...)
}

// initSpeech builds the speaker fallback chain.
func (a *App) initSpeech() {
	name := func(i int) string {
		if i < len(a.providers.SpeakerNames) {
			return a.providers.SpeakerNames[i]
		}
		return fmt.Sprintf("speaker-%d", i)
	}
	fbCfg := resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Minute,
	}}
	a.speaker = resilience.NewSpeakerFallback(a.providers.Speakers[0], name(0), fbCfg)
	for i, s := range a.providers.Speakers[1:] {
		a.speaker.AddFallback(name(i+1), s)
	}
	slog.Info("speech engines", "order", a.speaker.Engines())
}

// initHistory opens the configured store unless one was injected.
func (a *App) initHistory(ctx context.Context) error {
	if a.store == nil {
		if dsn := a.cfg.History.PostgresDSN; dsn != "" {
			store, closeFn, err := history.Open(ctx, dsn)
			if err != nil {
				return err
			}
			a.store = store
			a.closers = append(a.closers, func() error { closeFn(); return nil })
			slog.Info("history: recording turns to postgres")
		} else {
			a.store = history.NewMemStore(0)
		}
	}
	a.recorder = history.NewRecorder(a.store)
	return nil
}

// initEngine builds the conversation engine and everything observing or
// driving it.
func (a *App) initEngine() error {
	a.farewell = FarewellMatcher(a.cfg.Farewell)

	fan := ui.NewFanout(ui.NewLogObserver(nil), a.recorder)

	// The session manager needs the engine and the engine reports to the
	// session manager; the host closure breaks the cycle.
	var sm *SessionManager
	host := engine.HostFunc(func() { sm.NavigateHome() })

	opts := []engine.Option{
		engine.WithObserver(fan),
		engine.WithProfiles(Profiles(a.cfg.Modes)),
		engine.WithVADConfig(VADConfig(a.cfg.VAD)),
		engine.WithRecorderOptions(RecorderOptions(a.cfg.Recorder)...),
		engine.WithFarewell(a.farewell),
		engine.WithMetrics(a.metrics),
	}
	if a.cfg.VAD.Tick > 0 {
		opts = append(opts, engine.WithTickInterval(a.cfg.VAD.Tick))
	}
	if a.cfg.VAD.HoldOff > 0 {
		opts = append(opts, engine.WithHoldOff(a.cfg.VAD.HoldOff))
	}
	opts = append(opts, a.engineOpts...)

	eng, err := engine.New(engine.Config{
		Microphone: a.providers.Microphone,
		Camera:     a.providers.Camera,
		Speaker:    a.speaker,
		Chat:       a.chat,
		VAD:        a.providers.VAD,
		Host:       host,
	}, opts...)
	if err != nil {
		return err
	}
	a.engine = eng
	sm = NewSessionManager(SessionManagerConfig{Engine: eng})
	a.sessions = sm

	a.hub = ui.NewHub(sm)
	fan.Add(a.hub)
	return nil
}

// pinger is implemented by stores with a reachable backend.
type pinger interface {
	Ping(ctx context.Context) error
}

func (a *App) initHTTP() {
	checkers := []health.Checker{
		health.Backend(a.chat.Breaker().Ready),
		health.Microphone(a.engine),
	}
	if p, ok := a.store.(pinger); ok {
		checkers = append(checkers, health.Checker{Name: "history", Check: p.Ping})
	}
	a.health = health.New(checkers...)

	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /ws", a.hub)
	mux.Handle("GET /history", history.Handler(a.store))
	a.handler = observe.Middleware(a.metrics)(mux)
}

// Handler returns the control server's routes.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Engine returns the conversation engine.
func (a *App) Engine() *engine.Engine { return a.engine }

// Hub returns the UI WebSocket hub.
func (a *App) Hub() *ui.Hub { return a.hub }

// History returns the turn store.
func (a *App) History() history.Store { return a.store }

// Farewell returns the live farewell matcher.
func (a *App) Farewell() *farewell.Matcher { return a.farewell }

// Config returns the configuration last applied.
func (a *App) Config() *config.Config {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	return a.cfg
}

// Addr returns the control server's address once Run is listening, or nil.
func (a *App) Addr() net.Addr {
	a.addrMu.Lock()
	defer a.addrMu.Unlock()
	return a.addr
}

// BootOptions selects what New's caller wants running before any user
// input.
type BootOptions struct {
	// Mode, if set, is entered immediately.
	Mode string

	// Facing overrides the mode's camera.
	Facing string

	// AutoStart treats launching the program as the user gesture.
	AutoStart bool
}

// Boot enters and optionally starts a mode. A zero BootOptions leaves the
// app on the home screen.
func (a *App) Boot(ctx context.Context, opts BootOptions) error {
	if opts.Mode == "" {
		if opts.AutoStart {
			return errors.New("app: autostart requires a mode")
		}
		return nil
	}
	mode, err := engine.ParseMode(opts.Mode)
	if err != nil {
		return err
	}
	var facing camera.Facing
	if opts.Facing != "" {
		if facing, err = camera.ParseFacing(opts.Facing); err != nil {
			return err
		}
	}
	if err := a.sessions.enter(ctx, mode, facing, "cli"); err != nil {
		return err
	}
	if !opts.AutoStart {
		return nil
	}
	return a.sessions.StartAfterUserGesture(ctx)
}

// Run serves the control server, the command line, the config watcher and
// the history writer until ctx is cancelled or "quit" is entered. It returns
// nil on a quit command.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.recorder.Run(gctx) })

	if addr := a.Config().Server.ListenAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", addr, err)
		}
		a.addrMu.Lock()
		a.addr = ln.Addr()
		a.addrMu.Unlock()

		srv := &http.Server{Handler: a.handler, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			slog.Info("control server listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: control server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	if a.input != nil {
		g.Go(func() error { return a.sessions.RunCommands(gctx, a.input, a.output) })
	}

	slog.Info("app running", "screen", a.sessions.Screen())
	err := g.Wait()
	if errors.Is(err, ErrQuit) {
		return nil
	}
	if err == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// ApplyConfig hot-applies what can change at runtime: the log level and the
// farewell vocabulary. Other changes are logged as needing a restart.
func (a *App) ApplyConfig(prev, next *config.Config) {
	d := config.Diff(prev, next)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("config: log level changed", "level", d.NewLogLevel)
	}
	if d.FarewellChanged {
		a.farewell.Update(d.Farewell.Phrases, FarewellThreshold(d.Farewell))
		slog.Info("config: farewell phrases reloaded", "phrases", len(a.farewell.Phrases()), "fuzzy", d.Farewell.Fuzzy)
	}
	if len(d.Restart) > 0 {
		slog.Warn("config: changes need a restart to take effect", "sections", d.Restart)
	}
	a.cfgMu.Lock()
	a.cfg = next
	a.cfgMu.Unlock()
}

// Shutdown stops the engine and releases resources in reverse-init order.
// If ctx expires before all closers finish, remaining closers are skipped
// and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Stop the engine first: it releases the microphone, the camera and
		// any speech in progress.
		a.sessions.Stop()

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
