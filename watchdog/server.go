package watchdog

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/guseggert/watchdog/watchdog/sdnotify"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// IOTimeout bounds reads and writes on every control connection.
const IOTimeout = 15 * time.Second

// ControlServer serves the control API.
// Handlers touch shared state only through State.
type ControlServer struct {
	logger  *zap.SugaredLogger
	state   *State
	metrics *metrics

	httpServer *http.Server
}

func newControlServer(logger *zap.SugaredLogger, state *State, m *metrics, gatherer prometheus.Gatherer) *ControlServer {
	s := &ControlServer{
		logger:  logger,
		state:   state,
		metrics: m,
	}

	router := httprouter.New()
	router.POST(OpPing.Path(), s.ping)
	router.POST(OpShutdown.Path(), s.shutdown)
	router.POST(OpRestart.Path(), s.restart)
	router.POST(OpEnableNotify.Path(), s.enableNotify)
	router.POST(OpDisableNotify.Path(), s.disableNotify)
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Handler:      router,
		ReadTimeout:  IOTimeout,
		WriteTimeout: IOTimeout,
		ErrorLog:     zap.NewStdLog(logger.Desugar()),
	}
	return s
}

// Handler returns the router, for serving the control API without a listener.
func (s *ControlServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve accepts connections on l until the server is shut down.
func (s *ControlServer) Serve(l net.Listener) error {
	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *ControlServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *ControlServer) Close() error {
	return s.httpServer.Close()
}

func (s *ControlServer) requestLogger(r *http.Request, op Operation) *zap.SugaredLogger {
	s.metrics.controlRequests.WithLabelValues(string(op)).Inc()
	return s.logger.With("request_id", uuid.NewString(), "op", op, "remote", r.RemoteAddr)
}

func (s *ControlServer) ping(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	log := s.requestLogger(r, OpPing)
	sent, err := s.state.SendIfEnabled(sdnotify.Watchdog)
	s.metrics.recordSend(sdnotify.Watchdog, sent, err)
	if err != nil {
		log.Warnw("forwarding watchdog notification", "error", err)
	}
	log.Debugw("ping", "forwarded", sent)
	sendContent(w, OpPing.Reply())
}

func (s *ControlServer) shutdown(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.requestLogger(r, OpShutdown).Info("shutting down")
	s.state.RequestExit(ExitOK)
	sendContent(w, OpShutdown.Reply())
}

func (s *ControlServer) restart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.requestLogger(r, OpRestart).Info("restarting")
	s.state.RequestExit(ExitRestart)
	sendContent(w, OpRestart.Reply())
}

func (s *ControlServer) enableNotify(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	log := s.requestLogger(r, OpEnableNotify)
	if err := s.state.EnableNotify(); err != nil {
		log.Warnw("opening notification socket", "error", err)
	}
	log.Debugw("notify enabled", "open", s.state.NotifyEnabled())
	sendContent(w, OpEnableNotify.Reply())
}

func (s *ControlServer) disableNotify(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	log := s.requestLogger(r, OpDisableNotify)
	if err := s.state.DisableNotify(); err != nil {
		log.Warnw("closing notification socket", "error", err)
	}
	log.Debug("notify disabled")
	sendContent(w, OpDisableNotify.Reply())
}

// sendContent writes a fixed, uncacheable text body and closes the connection afterwards.
func sendContent(w http.ResponseWriter, body string) {
	h := w.Header()
	h.Set("Cache-Control", "max-age=0,no-cache")
	h.Set("Content-Type", "text/plain")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Connection", "close")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, body)
}
