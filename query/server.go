package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/streamingfast/shutter"
	"github.com/streamingfast/subgraph-runtime/metrics"
	"github.com/streamingfast/subgraph-runtime/stream"
	"go.uber.org/zap"
)

const (
	QueryStreamCapacity = 100
	maxBodySize         = 1 << 20
)

var ErrNoQueryConsumer = errors.New("no component set up to handle incoming queries")

// Server accepts queries on POST / and hands each one, with a promise for
// its result, to the consumer of its query stream.
type Server struct {
	*shutter.Shutter

	listenAddr string
	logger     *zap.Logger
	metrics    *metrics.Metrics

	queries     chan *Query
	queriesOnce stream.Once

	router     *mux.Router
	httpServer *http.Server
}

type ServerOption func(s *Server)

func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

func WithLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(listenAddr string, opts ...ServerOption) *Server {
	s := &Server{
		listenAddr: listenAddr,
		logger:     zlog,
		queries:    make(chan *Query, QueryStreamCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNoop()
	}

	s.router = mux.NewRouter()
	s.router.HandleFunc("/", s.handleQuery).Methods(http.MethodPost)
	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleNotFound)

	s.httpServer = &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	s.Shutter = shutter.New(shutter.RegisterOnTerminating(s.stop))
	return s
}

// TakeQueryStream hands out the stream of incoming queries. Only the first
// call succeeds, later ones return stream.ErrAlreadyTaken.
func (s *Server) TakeQueryStream() (<-chan *Query, error) {
	if err := s.queriesOnce.Take(); err != nil {
		return nil, err
	}
	return s.queries, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on the configured address until the server is shut down.
// It refuses to start while nobody took the query stream.
func (s *Server) Serve() error {
	if !s.queriesOnce.Taken() {
		return ErrNoQueryConsumer
	}

	listener, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", s.listenAddr, err)
	}
	return s.ServeListener(listener)
}

func (s *Server) ServeListener(listener net.Listener) error {
	if !s.queriesOnce.Taken() {
		listener.Close()
		return ErrNoQueryConsumer
	}

	s.logger.Info("query server listening", zap.Stringer("addr", listener.Addr()))
	err := s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) stop(err error) {
	s.logger.Info("shutting down query server", zap.Error(err))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("query server did not shut down cleanly", zap.Error(err))
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.respond(w, http.StatusInternalServerError, []byte(fmt.Sprintf("reading query: %s", err)))
		return
	}

	q := &Query{Body: body, Promise: NewPromise()}
	select {
	case s.queries <- q:
	case <-s.Terminating():
		s.respond(w, http.StatusInternalServerError, []byte("query server is shutting down"))
		return
	case <-r.Context().Done():
		return
	}

	result, err := q.Promise.Wait(r.Context())
	if err != nil {
		s.logger.Debug("query failed", zap.Error(err))
		s.respond(w, http.StatusInternalServerError, []byte(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	s.respond(w, http.StatusOK, result)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusNotFound, []byte("Not found"))
}

func (s *Server) respond(w http.ResponseWriter, status int, body []byte) {
	s.metrics.QueryRequests.WithLabelValues(strconv.Itoa(status)).Inc()

	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("unable to write query response", zap.Error(err))
	}
}
