// Package gateway exposes the agent router over HTTP and a WebSocket RPC channel.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"storefront-agent/internal/domain"
	"storefront-agent/internal/infra/middleware"
)

// AgentService is the routing engine the gateway fronts.
type AgentService interface {
	Route(ctx context.Context, request string, reqCtx map[string]any) domain.ProcessingResult
	ProcessWith(ctx context.Context, name, request string, reqCtx map[string]any) (domain.ProcessingResult, error)
	SelectBestAgent(request string, reqCtx map[string]any) domain.RoutingDecision
	Agents() []domain.Agent
}

// RPCHandler handles a single RPC method call.
type RPCHandler func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (any, error)

// Deps configures a Server.
type Deps struct {
	Service     AgentService
	Auth        Authenticator       // nil = no authentication
	Events      domain.EventBus     // nil disables event forwarding
	Gatherer    prometheus.Gatherer // nil disables the metrics endpoint
	MetricsPath string              // defaults to /metrics
	RateLimit   middleware.RateLimitConfig
	Logger      *slog.Logger
}

// clientConn tracks a single WebSocket connection.
type clientConn struct {
	info      *ClientInfo
	ws        *websocket.Conn
	sendCh    chan Frame // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once
}

// Server serves the REST API, the metrics endpoint and WebSocket RPC.
type Server struct {
	svc        AgentService
	auth       Authenticator
	events     domain.EventBus
	gatherer   prometheus.Gatherer
	metricsAt  string
	rateLimit  middleware.RateLimitConfig
	clients    sync.Map // connID (uint64) -> *clientConn
	handlersMu sync.RWMutex
	handlers   map[string]RPCHandler
	logger     *slog.Logger
	addr       string
	httpSrv    *http.Server
	boundAddr  atomic.Value // string
	nextID     atomic.Uint64
	started    time.Time
}

// NewServer creates a gateway server with the standard RPC methods registered.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		svc:       deps.Service,
		auth:      deps.Auth,
		events:    deps.Events,
		gatherer:  deps.Gatherer,
		metricsAt: deps.MetricsPath,
		rateLimit: deps.RateLimit,
		handlers:  make(map[string]RPCHandler),
		logger:    logger,
		addr:      addr,
		started:   time.Now(),
	}
	if s.metricsAt == "" {
		s.metricsAt = "/metrics"
	}
	s.registerRPCMethods()
	return s
}

// RegisterHandler adds an RPC handler for the given method name.
// Safe to call concurrently with active connections.
func (s *Server) RegisterHandler(method string, handler RPCHandler) {
	s.handlersMu.Lock()
	s.handlers[method] = handler
	s.handlersMu.Unlock()
}

// Handler returns the fully wrapped HTTP handler. ctx bounds background
// work: rate-limiter cleanup and the event subscription.
func (s *Server) Handler(ctx context.Context) http.Handler {
	if s.events != nil {
		unsub := s.events.SubscribeAll(s.forwardEvent)
		go func() {
			<-ctx.Done()
			unsub()
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/process", s.requireAuth(s.handleProcess))
	mux.HandleFunc("POST /api/v1/route", s.requireAuth(s.handleRoute))
	mux.HandleFunc("GET /api/v1/agents", s.requireAuth(s.handleAgents))
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleUpgrade)
	if s.gatherer != nil {
		mux.Handle("GET "+s.metricsAt, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.AccessLog(s.logger),
		middleware.SecurityHeaders,
		middleware.RateLimit(ctx, s.rateLimit),
	)
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr.Store(listener.Addr().String())

	s.httpSrv = &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("gateway started", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the gateway server.
func (s *Server) Stop(ctx context.Context) error {
	s.clients.Range(func(key, value any) bool {
		cc := value.(*clientConn)
		cc.closeOnce.Do(func() { close(cc.done) })
		cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.clients.Delete(key)
		return true
	})

	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// BoundAddr returns the actual address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string {
	addr, _ := s.boundAddr.Load().(string)
	return addr
}

// forwardEvent fans an event out to every connected client without blocking.
func (s *Server) forwardEvent(_ context.Context, event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	frame := Frame{
		Type:    FrameTypeEvent,
		Method:  string(event.Type),
		Payload: payload,
	}
	s.clients.Range(func(_, value any) bool {
		cc := value.(*clientConn)
		select {
		case cc.sendCh <- frame:
		default:
			s.logger.Warn("gateway: dropped event for slow client", "event", event.Type)
		}
		return true
	})
}

// authenticate resolves the request's client. It returns anonymous when
// authentication is disabled.
func (s *Server) authenticate(r *http.Request) (*ClientInfo, error) {
	if s.auth == nil {
		return anonymous, nil
	}
	return s.auth.Authenticate(requestToken(r))
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.authenticate(r); err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="storefront-agent"`)
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	clientInfo, err := s.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	connID := s.nextID.Add(1)
	cc := &clientConn{
		info:   clientInfo,
		ws:     ws,
		sendCh: make(chan Frame, 64),
		done:   make(chan struct{}),
	}
	s.clients.Store(connID, cc)
	s.logger.Info("gateway client connected", "conn_id", connID, "client", clientInfo.Name)

	go s.writeLoop(cc)
	s.readLoop(r.Context(), cc)

	cc.closeOnce.Do(func() { close(cc.done) })
	s.clients.Delete(connID)
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway client disconnected", "conn_id", connID)
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		default:
		}

		var frame Frame
		if err := wsjson.Read(ctx, cc.ws, &frame); err != nil {
			return // connection closed or error
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		go s.dispatchRPC(ctx, cc, frame)
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, cc.ws, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatchRPC(ctx context.Context, cc *clientConn, req Frame) {
	s.handlersMu.RLock()
	handler, ok := s.handlers[req.Method]
	s.handlersMu.RUnlock()
	if !ok {
		s.sendResponse(cc, req.ID, nil, domain.NewDomainError("gateway.rpc", domain.ErrInvalidInput,
			fmt.Sprintf("unknown method %q", req.Method)))
		return
	}

	// Each RPC is its own request for logging and result correlation.
	ctx = domain.ContextWithRequestID(ctx, ulid.Make().String())
	result, err := handler(ctx, cc.info, req.Payload)
	s.sendResponse(cc, req.ID, result, err)
}

func (s *Server) sendResponse(cc *clientConn, id uint64, result any, err error) {
	resp := Frame{Type: FrameTypeResponse, ID: id}
	if err == nil && result != nil {
		payload, mErr := json.Marshal(result)
		if mErr != nil {
			err = fmt.Errorf("encode result: %w", mErr)
		} else {
			resp.Payload = payload
		}
	}
	if err != nil {
		resp.Error = err.Error()
		resp.Code = string(domain.ErrorCodeOf(err))
	}
	select {
	case cc.sendCh <- resp:
	default:
		s.logger.Warn("gateway: dropped RPC response for slow client", "frame_id", id)
	}
}
