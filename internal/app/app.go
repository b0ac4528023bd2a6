// Package app wires every component together: configuration, logging,
// the core registries and dispatcher, the audit store, the liveness
// pinger, and the WebSocket/HTTP transport. It mirrors the teacher's
// app.go in shape: a New that builds everything eagerly and a Run that
// blocks until ctx is canceled.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/letsplay-server/internal/adminauth"
	"github.com/vovakirdan/letsplay-server/internal/config"
	"github.com/vovakirdan/letsplay-server/internal/core"
	"github.com/vovakirdan/letsplay-server/internal/emu"
	"github.com/vovakirdan/letsplay-server/internal/store/sqlite"
	"github.com/vovakirdan/letsplay-server/internal/transport/ws"
)

// App holds every long-lived component New constructs, so Run and
// cleanup both have a single place to reach them.
type App struct {
	cfg *config.Provider
	log *zerolog.Logger

	users       *core.UserRegistry
	sessions    *core.SessionRegistry
	queue       *core.CommandQueue
	broadcaster *core.Broadcaster
	dispatcher  *core.Dispatcher
	spawner     *emu.Spawner
	server      *core.Server
	pinger      *core.Pinger
	audit       *sqlite.Store

	httpServer *http.Server
}

// New builds every component and wires them together, but starts
// nothing: call Run to accept connections.
func New(cfgPath string, log *zerolog.Logger) (*App, error) {
	cfgProvider, err := config.Load(cfgPath, log)
	if err != nil {
		return nil, fmt.Errorf("app: load config: %w", err)
	}
	full := cfgProvider.Full()

	audit, err := sqlite.Open(full.SQLitePath, log)
	if err != nil {
		return nil, fmt.Errorf("app: open audit store: %w", err)
	}

	users := core.NewUserRegistry()
	sessions := core.NewSessionRegistry()
	queue := core.NewCommandQueue()
	broadcaster := core.NewBroadcaster(users, log)

	spawner := emu.NewSpawner(full.TurnDuration, broadcaster, cfgProvider, log)

	dispatcher := core.NewDispatcher(users, sessions, queue, broadcaster, cfgProvider, adminauth.New(), log)
	dispatcher.Spawner = spawner
	dispatcher.Audit = audit

	server := core.NewServer(users, sessions, queue, dispatcher, broadcaster, log)
	pinger := core.NewPinger(users, full.PingTimeout)
	pinger.Log = log

	a := &App{
		cfg:         cfgProvider,
		log:         log,
		users:       users,
		sessions:    sessions,
		queue:       queue,
		broadcaster: broadcaster,
		dispatcher:  dispatcher,
		spawner:     spawner,
		server:      server,
		pinger:      pinger,
		audit:       audit,
	}

	for _, b := range full.Bootstrap {
		dispatcher.BootstrapSession(b.ID, b.CorePath, b.RomPath)
	}

	a.httpServer = &http.Server{
		Addr:    full.ListenAddr,
		Handler: a.router(),
	}
	server.StopAccepting = func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.httpServer.Shutdown(shutdownCtx)
	}

	return a, nil
}

func (a *App) router() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.stats())
	})

	r.GET("/history", func(c *gin.Context) {
		rows, err := a.audit.RecentChat(historyLimit(c.Query("n")))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read chat history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": rows})
	})

	wsHandler := ws.NewHandler(a.server, a.log)
	r.GET("/ws", func(c *gin.Context) {
		wsHandler.ServeHTTP(c.Writer, c.Request)
	})

	return r
}

// defaultHistoryLimit and maxHistoryLimit bound the /history query, so
// an unset or absurd ?n= can't turn one request into an unbounded scan
// of chat_log.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

func historyLimit(raw string) int {
	if raw == "" {
		return defaultHistoryLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultHistoryLimit
	}
	if n > maxHistoryLimit {
		return maxHistoryLimit
	}
	return n
}

type sessionStats struct {
	ID        string `json:"id"`
	QueueLen  int    `json:"queue_len"`
	HasHolder bool   `json:"has_holder"`
}

func (a *App) stats() gin.H {
	var sessions []sessionStats
	a.sessions.Iterate(func(s core.Session) {
		arb := s.Arbiter()
		sessions = append(sessions, sessionStats{
			ID:        s.ID(),
			QueueLen:  arb.QueueLen(),
			HasHolder: arb.Holder() != nil,
		})
	})

	return gin.H{
		"users":    a.users.Count(),
		"sessions": sessions,
	}
}

// Run starts the dispatcher loop, the liveness pinger, and the HTTP
// server, and blocks until ctx is canceled, at which point it runs the
// graceful shutdown sequence and returns.
func (a *App) Run(ctx context.Context) error {
	go a.dispatcher.Run()

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go a.pinger.Run(pingCtx)

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = err
		if a.log != nil {
			a.log.Error().Err(err).Msg("http server failed")
		}
	}

	a.server.Shutdown()
	a.spawner.Stop()

	if err := a.audit.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
