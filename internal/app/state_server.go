package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"botdash/clients/botapi"
	"botdash/clients/notifier"
	"botdash/config"
	"botdash/internal/prefs"
	"botdash/internal/state"
)

// backendAPI is the slice of the REST client the server relays directly:
// committed field edits, the trade-history surface, and trade close.
type backendAPI interface {
	UpdateSetting(ctx context.Context, path string, value any) error
	GetTrades(ctx context.Context, activeOnly bool) ([]state.Position, error)
	CloseTrade(ctx context.Context, ticket int64) error
}

// StateServer is the browser-facing surface: a REST read side over the
// reconciled state plus a websocket hub that pushes every state change, and
// the action endpoints the dashboard drives the bot through.
type StateServer struct {
	logger     *zap.Logger
	engine     *gin.Engine
	srv        *http.Server
	hub        *Hub
	store      *state.Store
	queue      *notifier.QueueNotifier
	prefs      *prefs.Store
	lifecycle  *Lifecycle
	supervisor *Supervisor
	api        backendAPI
	live       *config.LiveConfig
}

func NewStateServer(
	logger *zap.Logger,
	cfg *config.Config,
	store *state.Store,
	queue *notifier.QueueNotifier,
	prefsStore *prefs.Store,
	lifecycle *Lifecycle,
	supervisor *Supervisor,
	api backendAPI,
	live *config.LiveConfig,
) *StateServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &StateServer{
		logger:     logger.Named("state_server"),
		engine:     gin.New(),
		hub:        NewHub(logger),
		store:      store,
		queue:      queue,
		prefs:      prefsStore,
		lifecycle:  lifecycle,
		supervisor: supervisor,
		api:        api,
		live:       live,
	}
	s.engine.Use(gin.Recovery())
	s.setupRoutes()

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.StateServer.Port),
		Handler: s.engine,
	}
	return s
}

func (s *StateServer) setupRoutes() {
	s.engine.GET("/healthz", s.getHealth)

	api := s.engine.Group("/api")
	{
		api.GET("/state", s.getState)
		api.GET("/notifications", s.getNotifications)
		api.POST("/notifications/:id/dismiss", s.dismissNotification)

		api.GET("/prefs", s.getPrefs)
		api.PUT("/prefs/:key", s.putPref)

		api.POST("/bot/start", s.startBot)
		api.POST("/bot/stop", s.stopBot)
		api.POST("/bot/reconnect", s.reconnectBot)
		api.POST("/positions/:ticket/close", s.closePosition)

		api.GET("/trades", s.getTrades)
		api.POST("/trades/:ticket/close", s.closeTrade)

		api.POST("/edits/acquire", s.acquireEdit)
		api.POST("/edits/commit", s.commitEdit)
		api.POST("/edits/cancel", s.cancelEdit)

		api.GET("/config", s.getConfig)
		api.PUT("/config", s.putConfig)
	}

	s.engine.GET("/ws", func(c *gin.Context) {
		s.hub.ServeWS(c.Writer, c.Request)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *StateServer) Run(ctx context.Context) error {
	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	go s.hub.Run(hubCtx)

	s.store.AddObserver(s)
	defer s.store.RemoveObserver(s)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("state server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("state server: %w", err)
	}
}

// OnStateChange pushes every reconciled state to connected browsers.
func (s *StateServer) OnStateChange(st state.ApplicationState) {
	payload, err := st.ToJSON()
	if err != nil {
		s.logger.Error("state encode failed", zap.Error(err))
		return
	}
	s.hub.Broadcast(payload)
}

func (s *StateServer) getHealth(c *gin.Context) {
	st := s.store.Get()
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"clients":      s.hub.ClientCount(),
		"socket_state": st.Connection.SocketState,
	})
}

func (s *StateServer) getState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state": s.store.Get(),
		"phase": s.lifecycle.Phase(),
		"steps": s.lifecycle.Steps(),
	})
}

func (s *StateServer) getNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, s.queue.Recent(50))
}

func (s *StateServer) dismissNotification(c *gin.Context) {
	if !s.queue.Dismiss(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "notification not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *StateServer) getPrefs(c *gin.Context) {
	all, err := s.prefs.All(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, all)
}

func (s *StateServer) putPref(c *gin.Context) {
	var body struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid body"})
		return
	}
	if err := s.prefs.Set(c.Request.Context(), c.Param("key"), body.Value); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// startBot kicks off the start sequence and returns immediately; progress
// reaches the browser through the push hub.
func (s *StateServer) startBot(c *gin.Context) {
	if err := s.lifecycle.StartAsync(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"phase": s.lifecycle.Phase()})
}

func (s *StateServer) stopBot(c *gin.Context) {
	if err := s.lifecycle.Stop(c.Request.Context()); err != nil {
		c.JSON(apiStatus(err), gin.H{"detail": failureDetail(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"phase": s.lifecycle.Phase()})
}

func (s *StateServer) reconnectBot(c *gin.Context) {
	if err := s.supervisor.Reconnect(c.Request.Context()); err != nil {
		c.JSON(apiStatus(err), gin.H{"detail": failureDetail(err)})
		return
	}
	c.Status(http.StatusAccepted)
}

// closePosition removes the position optimistically through the lifecycle;
// a backend rejection rolls the list back.
func (s *StateServer) closePosition(c *gin.Context) {
	ticket, ok := parseTicket(c)
	if !ok {
		return
	}
	if err := s.lifecycle.ClosePosition(c.Request.Context(), ticket); err != nil {
		c.JSON(apiStatus(err), gin.H{"detail": failureDetail(err)})
		return
	}
	c.Status(http.StatusNoContent)
}

// getTrades relays the backend's trade history. Trades are not part of the
// reconciled state, so the server proxies the read instead of caching it.
func (s *StateServer) getTrades(c *gin.Context) {
	activeOnly := c.Query("active_only") == "true"
	trades, err := s.api.GetTrades(c.Request.Context(), activeOnly)
	if err != nil {
		c.JSON(apiStatus(err), gin.H{"detail": failureDetail(err)})
		return
	}
	if trades == nil {
		trades = []state.Position{}
	}
	c.JSON(http.StatusOK, trades)
}

func (s *StateServer) closeTrade(c *gin.Context) {
	ticket, ok := parseTicket(c)
	if !ok {
		return
	}
	if err := s.api.CloseTrade(c.Request.Context(), ticket); err != nil {
		c.JSON(apiStatus(err), gin.H{"detail": failureDetail(err)})
		return
	}
	c.Status(http.StatusNoContent)
}

func parseTicket(c *gin.Context) (int64, bool) {
	ticket, err := strconv.ParseInt(c.Param("ticket"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid ticket"})
		return 0, false
	}
	return ticket, true
}

func (s *StateServer) acquireEdit(c *gin.Context) {
	var body struct {
		Path string `json:"path"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid body"})
		return
	}
	value, ok := s.store.AcquireEdit(body.Path)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"detail": "field is locked or unknown"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": body.Path, "value": value})
}

func (s *StateServer) commitEdit(c *gin.Context) {
	var body struct {
		Path  string `json:"path"`
		Value any    `json:"value"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid body"})
		return
	}
	err := s.store.CommitEdit(c.Request.Context(), body.Path, body.Value, s.api.UpdateSetting)
	if err != nil {
		status := apiStatus(err)
		if errors.Is(err, state.ErrValueType) || errors.Is(err, state.ErrUnknownField) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"detail": failureDetail(err)})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *StateServer) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.live.Get())
}

// putConfig merges a partial config over the current one and applies it
// through the live config, which validates and fans the change out to
// registered observers.
func (s *StateServer) putConfig(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid body"})
		return
	}
	merged, err := config.ConfigFromJSON(data, s.live.Get())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid body"})
		return
	}
	if err := s.live.Update(merged); err != nil {
		var vErr *config.ConfigValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": vErr.Error(), "errors": vErr.Errors})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	s.logger.Info("config updated via api")
	c.Status(http.StatusNoContent)
}

func (s *StateServer) cancelEdit(c *gin.Context) {
	var body struct {
		Path string `json:"path"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid body"})
		return
	}
	s.store.CancelEdit(body.Path)
	c.Status(http.StatusNoContent)
}

// apiStatus relays the backend's status code when the failure came from it,
// and reports a gateway error otherwise.
func apiStatus(err error) int {
	var apiErr *botapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return http.StatusBadGateway
}
