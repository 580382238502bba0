// ABOUTME: Loopback relay speaking the voice relay event catalogue
// ABOUTME: Greets on start_listening and echoes microphone audio back as agent audio
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harperreed/voicecoach/internal/discovery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultGreeting is sent as the agent's first turn
const DefaultGreeting = "Hello! I'm DeepgramCoach, your language learning partner. " +
	"Which language would you like to practice today, and would you like to work on " +
	"conversation practice or pronunciation practice?"

const shutdownTimeout = 5 * time.Second

// Config holds relay configuration
type Config struct {
	Addr       string
	Path       string
	Name       string
	Greeting   string
	EnableMDNS bool

	// Language and Mode, when set, are selected right after the greeting
	Language string
	Mode     string

	Logger *zap.Logger
}

// Stats tracks relay counters
type Stats struct {
	Connections  int64
	Active       int64
	FramesEchoed int64
}

// Server is the loopback relay
type Server struct {
	config   Config
	logger   *zap.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	// ctx outlives requests; hijacked connections end when it is cancelled
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool

	connections  atomic.Int64
	active       atomic.Int64
	framesEchoed atomic.Int64
}

// New creates a relay
func New(config Config) *Server {
	if config.Addr == "" {
		config.Addr = ":8787"
	}
	if config.Path == "" {
		config.Path = discovery.DefaultPath
	}
	if config.Name == "" {
		config.Name = "voicecoach-loopback"
	}
	if config.Greeting == "" {
		config.Greeting = DefaultGreeting
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: config,
		logger: config.Logger.Named("relay"),
		upgrader: websocket.Upgrader{
			// Local development peer; any origin may connect
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux:    http.NewServeMux(),
		ctx:    ctx,
		cancel: cancel,
	}
	s.mux.HandleFunc(config.Path, s.handleWebSocket)
	return s
}

// Handler returns the relay's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Stats returns relay counters
func (s *Server) Stats() Stats {
	return Stats{
		Connections:  s.connections.Load(),
		Active:       s.active.Load(),
		FramesEchoed: s.framesEchoed.Load(),
	}
}

// Run listens on the configured address until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if s.config.EnableMDNS {
		mdnsManager := discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        portOf(ln.Addr()),
			Path:        s.config.Path,
			Logger:      s.logger,
		})
		if err := mdnsManager.Advertise(); err != nil {
			s.logger.Warn("Failed to start mDNS advertisement", zap.Error(err))
		} else {
			defer mdnsManager.Stop()
		}
	}

	s.logger.Info("Loopback relay listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("path", s.config.Path))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("relay shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	s.logger.Info("Loopback relay stopped")
	return err
}

// Close ends every open connection and waits for their handlers
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "relay is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}

	q := r.URL.Query()
	s.logger.Info("Client connected",
		zap.String("remote", r.RemoteAddr),
		zap.String("client_id", q.Get("client_id")),
		zap.String("product", q.Get("product")),
		zap.String("version", q.Get("version")))

	s.connections.Add(1)
	s.active.Add(1)
	defer s.active.Add(-1)

	p := newPeer(conn, s)
	if err := p.run(s.ctx); err != nil {
		s.logger.Warn("Client connection ended", zap.Error(err))
		return
	}
	s.logger.Info("Client disconnected", zap.String("remote", r.RemoteAddr))
}

func portOf(addr net.Addr) int {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	_, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}
