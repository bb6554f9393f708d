// Package control exposes the watcher over HTTP: status, reselect and quit,
// Prometheus metrics and a websocket alert stream.
package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	api "github.com/etesami/roi-watcher/api"
	"github.com/etesami/roi-watcher/internal/feed"
	"github.com/etesami/roi-watcher/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Session is the part of session.Controller the control surface needs.
type Session interface {
	Status() session.Status
	Send(sig session.Signal) bool
}

const writeWait = 5 * time.Second

// upgrader keeps gorilla's same-origin check: a foreign page cannot open the
// alert stream from a browser.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type Server struct {
	engine  *gin.Engine
	session Session
	hub     *feed.Hub
	log     *zap.Logger
}

// NewServer wires the routes. hub and gatherer may be nil, which disables
// /ws/alerts and /metrics.
func NewServer(sess Session, hub *feed.Hub, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:  gin.New(),
		session: sess,
		hub:     hub,
		log:     log,
	}
	s.engine.Use(gin.Recovery(), s.requestLog)

	s.engine.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	s.engine.GET("/api/status", s.status)
	s.engine.POST("/api/session/reselect", s.reselect)
	s.engine.POST("/api/session/quit", s.quit)
	if gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	if hub != nil {
		s.engine.GET("/ws/alerts", s.alerts)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) requestLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("http request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("latency", time.Since(start)),
	)
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.session.Status()})
}

func (s *Server) reselect(c *gin.Context) {
	sig := session.Signal{Kind: session.Reselect}
	if c.Request.ContentLength != 0 {
		var box api.BoundingBox
		if err := c.ShouldBindJSON(&box); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid box: " + err.Error()})
			return
		}
		if !box.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "box width and height must be positive"})
			return
		}
		sig.Box = &box
	}
	if !s.session.Send(sig) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "control queue is full"})
		return
	}
	s.log.Info("reselect requested over HTTP", zap.Bool("with_box", sig.Box != nil))
	c.JSON(http.StatusAccepted, gin.H{"data": "reselect queued"})
}

func (s *Server) quit(c *gin.Context) {
	if !s.session.Send(session.Signal{Kind: session.Quit}) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "control queue is full"})
		return
	}
	s.log.Info("quit requested over HTTP")
	c.JSON(http.StatusAccepted, gin.H{"data": "quit queued"})
}

// alerts streams every alert as a JSON text message until the client goes
// away or the hub closes.
func (s *Server) alerts(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id, events := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)
	s.log.Info("websocket alert subscriber connected", zap.String("id", id))

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			s.log.Info("websocket alert subscriber left", zap.String("id", id))
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "watcher stopped"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Warn("websocket write failed", zap.String("id", id), zap.Error(err))
				return
			}
		}
	}
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("control server shutdown", zap.Error(err))
		}
	}()
	s.log.Info("starting control server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
