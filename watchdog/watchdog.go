package watchdog

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/guseggert/watchdog/watchdog/sdnotify"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultListenAddr is the control server's address: port 9080 on all interfaces.
const DefaultListenAddr = ":9080"

// Watchdog serves the control API and keeps the supervisor's watchdog fed
// for as long as the control API answers its own pings.
type Watchdog struct {
	logger   *zap.SugaredLogger
	logLevel *zapcore.Level

	listenAddr   string
	pingInterval time.Duration
	pingTimeout  time.Duration
	lookup       sdnotify.LookupFunc
	registry     *prometheus.Registry

	state   *State
	metrics *metrics
	server  *ControlServer
}

type Option func(w *Watchdog)

func WithListenAddr(s string) Option {
	return func(w *Watchdog) {
		w.listenAddr = s
	}
}

// WithPingInterval overrides the interval derived from WATCHDOG_USEC.
func WithPingInterval(d time.Duration) Option {
	return func(w *Watchdog) {
		w.pingInterval = d
	}
}

func WithPingTimeout(d time.Duration) Option {
	return func(w *Watchdog) {
		w.pingTimeout = d
	}
}

// WithNotifyAddrLookup replaces the NOTIFY_SOCKET lookup.
func WithNotifyAddrLookup(f sdnotify.LookupFunc) Option {
	return func(w *Watchdog) {
		w.lookup = f
	}
}

func WithRegistry(r *prometheus.Registry) Option {
	return func(w *Watchdog) {
		w.registry = r
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(w *Watchdog) {
		w.logger = l.Sugar()
	}
}

// WithLogLevel raises the minimum level of the logger, including one set by WithLogger.
func WithLogLevel(l zapcore.Level) Option {
	return func(w *Watchdog) {
		w.logLevel = &l
	}
}

// New constructs a watchdog. Nothing is opened or bound until Run.
func New(opts ...Option) (*Watchdog, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	w := &Watchdog{
		logger:      logger.Sugar(),
		listenAddr:  DefaultListenAddr,
		pingTimeout: DefaultPingTimeout,
		lookup:      sdnotify.EnvLookup,
		registry:    prometheus.NewRegistry(),
	}
	for _, o := range opts {
		o(w)
	}
	if w.logLevel != nil {
		w.logger = w.logger.WithOptions(zap.IncreaseLevel(*w.logLevel))
	}
	w.logger = w.logger.Named("watchdog")

	if w.pingInterval <= 0 {
		interval, err := sdnotify.PingInterval()
		if err != nil {
			w.logger.Warnw("using default ping interval", "error", err)
		}
		w.pingInterval = interval
	}

	w.metrics = newMetrics(w.registry)
	w.state = NewState(w.lookup)
	w.server = newControlServer(w.logger.Named("control_server"), w.state, w.metrics, w.registry)
	return w, nil
}

func (w *Watchdog) PingInterval() time.Duration { return w.pingInterval }

// State exposes the shared state, mainly for tests and embedding.
func (w *Watchdog) State() *State { return w.state }

// Run serves until an exit is requested over the control API or ctx is done,
// then drains the server and returns the exit code the process should use.
// Cancelling ctx (e.g. on SIGINT) leaves the exit code at ExitUncaughtException
// unless a code was already recorded.
// A non-nil error means the watchdog could not start.
func (w *Watchdog) Run(ctx context.Context) (ExitCode, error) {
	if err := w.state.EnableNotify(); err != nil {
		w.logger.Warnw("opening notification socket", "error", err)
	}

	l, err := net.Listen("tcp", w.listenAddr)
	if err != nil {
		w.closeNotify()
		return ExitUncaughtException, fmt.Errorf("listening TCP: %w", err)
	}
	w.logger.Infow("serving HTTP", "addr", l.Addr().String(), "ping_interval", w.pingInterval)

	pinger, err := newPinger(w.logger.Named("pinger"), loopbackAddr(l.Addr()), w.pingTimeout, w.metrics)
	if err != nil {
		l.Close()
		w.closeNotify()
		return ExitUncaughtException, err
	}

	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		if err := w.server.Serve(l); err != nil {
			w.logger.Errorw("HTTP server stopped", "error", err)
		}
	}()

	sent, err := w.state.SendIfEnabled(sdnotify.Ready)
	w.metrics.recordSend(sdnotify.Ready, sent, err)
	if err != nil {
		w.logger.Warnw("sending readiness notification", "error", err)
	}

	w.serve(ctx, pinger)

	w.drain(serveDone)
	code := w.state.ExitCode()
	w.logger.Infow("done", "exit_code", int(code), "reason", code)
	return code, nil
}

func (w *Watchdog) serve(ctx context.Context, pinger *Pinger) {
	for !w.state.Terminated() {
		terminated, err := w.state.Wait(ctx, w.pingInterval)
		if err != nil {
			w.logger.Infow("interrupt received", "error", err)
			return
		}
		if terminated {
			return
		}
		// TODO: decide whether repeated ping failures should request ExitRestart.
		if err := pinger.Ping(ctx); err != nil {
			w.logger.Errorw("ping failed", "error", err)
		}
	}
}

func (w *Watchdog) drain(serveDone <-chan struct{}) {
	w.logger.Info("shutting down HTTP server")
	ctx, cancel := context.WithTimeout(context.Background(), IOTimeout)
	defer cancel()
	if err := w.server.Shutdown(ctx); err != nil {
		w.logger.Warnw("graceful shutdown incomplete, closing connections", "error", err)
		w.server.Close()
	}
	<-serveDone
	w.closeNotify()
}

func (w *Watchdog) closeNotify() {
	if err := w.state.Close(); err != nil {
		w.logger.Warnw("closing notification socket", "error", err)
	}
}
