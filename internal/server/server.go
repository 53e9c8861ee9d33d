package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const maintenanceInterval = 30 * time.Second

type Server struct {
	cfg               Config
	logger            *zap.Logger
	rooms             *RoomManager
	connectionManager *ConnectionManager
	sessionManager    *SessionManager
	invites           *InviteBook
	history           HistoryStore
	rateLimiter       *RateLimiter
	connectionHealth  *ConnectionHealth

	historyWG    sync.WaitGroup
	shuttingDown atomic.Bool
	stop         chan struct{}
	stopOnce     sync.Once
}

// newServer wires the in-memory components. opts lets tests swap the clock,
// the randomness and the deadline scheduler.
func newServer(cfg Config, logger *zap.Logger, history HistoryStore, opts RoomManagerOptions) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if history == nil {
		history = NoopHistoryStore{}
	}
	opts.Logger = logger
	if opts.Grace <= 0 {
		opts.Grace = cfg.DisconnectGrace
	}
	opts.DealRemainder = opts.DealRemainder || cfg.DealRemainder

	s := &Server{
		cfg:               cfg,
		logger:            logger,
		rooms:             NewRoomManager(NewMemoryRoomStore(), opts),
		connectionManager: NewConnectionManager(),
		sessionManager:    NewSessionManager(),
		invites:           NewInviteBook(defaultInviteTTL, nil),
		history:           history,
		rateLimiter:       NewRateLimiter(cfg.RateLimitPerSecond, time.Second),
		connectionHealth:  NewConnectionHealth(),
		stop:              make(chan struct{}),
	}
	s.rooms.Monitor().SetNotifier(s.publish)
	return s
}

// NewServer builds the game server and the HTTP server that fronts it. The
// history store is Postgres when DATABASE_URL is set.
func NewServer(ctx context.Context, cfg Config, logger *zap.Logger) (*Server, *http.Server, error) {
	var history HistoryStore = NoopHistoryStore{}
	if cfg.DatabaseURL != "" {
		store, err := NewPostgresHistoryStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("history store: %w", err)
		}
		history = store
		logger.Info("game history enabled")
	} else {
		logger.Info("DATABASE_URL not set, game history disabled")
	}

	s := newServer(cfg, logger, history, RoomManagerOptions{})
	go s.maintenanceTask(maintenanceInterval)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, httpServer, nil
}

// maintenanceTask trims limiter state, expires invites and closes sockets
// that have gone quiet for longer than the idle timeout.
func (s *Server) maintenanceTask(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.rateLimiter.Cleanup()
			if n := s.invites.Expire(); n > 0 {
				s.logger.Debug("expired invites", zap.Int("count", n))
			}
			s.closeIdleConnections(s.cfg.IdleTimeout)
		}
	}
}

func (s *Server) closeIdleConnections(timeout time.Duration) {
	for _, connID := range s.connectionHealth.GetInactiveConnections(timeout) {
		conn := s.connectionManager.GetConnection(connID)
		if conn == nil {
			s.connectionHealth.RemoveConnection(connID)
			continue
		}
		s.logger.Info("closing idle connection", zap.String("connection_id", connID))
		conn.Close(websocket.StatusPolicyViolation, "Idle timeout")
	}
}

// Shutdown stops background work, cancels pending reconnection deadlines,
// tells every client the server is going away and waits for in-flight
// history writes.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)
	s.stopOnce.Do(func() { close(s.stop) })

	s.rooms.Monitor().StopAll()

	for _, connID := range s.connectionManager.All() {
		s.sendTo(connID, EventServerShutdown, NoticeMessage{Message: "Server is shutting down"})
		if conn := s.connectionManager.GetConnection(connID); conn != nil {
			conn.CloseNow()
		}
	}

	done := make(chan struct{})
	go func() {
		s.historyWG.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for history writes: %w", ctx.Err())
	}

	s.history.Close()
	s.logger.Info("server shutdown complete", zap.Int("rooms", s.rooms.RoomCount()))
	return err
}
