package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/antonykevinfernando/doorstep-sub001/internal/deposits"
	"github.com/antonykevinfernando/doorstep-sub001/internal/dispatch"
	"github.com/antonykevinfernando/doorstep-sub001/internal/payments"
)

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

type Server struct {
	Deposits *deposits.Service
	WSReg    *dispatch.WSRegistry
	// ReadyChecks are run by /ready in addition to the store ping.
	ReadyChecks map[string]ReadyCheck
	// FakeCheckout, when set, serves the fake gateway's hosted page locally.
	FakeCheckout *payments.FakeGateway

	logger   *slog.Logger
	mux      *mux.Router
	upgrader websocket.Upgrader
}

func NewServer(svc *deposits.Service, wsreg *dispatch.WSRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Deposits:    svc,
		WSReg:       wsreg,
		ReadyChecks: make(map[string]ReadyCheck),
		logger:      logger,
		mux:         mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

// FakeCheckoutPath is where the fake gateway's hosted page is served.
const FakeCheckoutPath = "/dev/checkout"

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1/deposits").Subrouter()
	api.HandleFunc("/holds", s.handleCreateHold).Methods(http.MethodPost)
	api.HandleFunc("/checkout", s.handleCreateCheckout).Methods(http.MethodPost)
	api.HandleFunc("/checkout/success", s.handleCheckoutSuccess).Methods(http.MethodGet)
	api.HandleFunc("/checkout/cancel", s.handleCheckoutCancel).Methods(http.MethodGet)
	api.HandleFunc("/capture", s.handleCapture).Methods(http.MethodPost)
	api.HandleFunc("/{deposit_id}", s.handleGetDeposit).Methods(http.MethodGet)

	s.mux.HandleFunc(FakeCheckoutPath+"/pay/{session_id}", s.handleFakeCheckoutPay).Methods(http.MethodGet)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/deposits", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
