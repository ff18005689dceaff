package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// configCommands maps PUT /config/:name to commands
var configCommands = map[string]string{
	"broadcasting": CmdSetBroadcasting,
	"mirror":       CmdSetMirror,
	"scaling":      CmdSetScaling,
	"aspect_ratio": CmdSetAspectRatio,
	"frame_rate":   CmdSetFrameRate,
	"format":       CmdSetFormat,
}

// NewRouter builds the HTTP control API
func NewRouter(ctrl Controller) *gin.Engine {
	return newRouter(ctrl, DefaultLiveInterval)
}

func newRouter(ctrl Controller, liveInterval time.Duration) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "running": ctrl.Running()})
	})

	router.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, ctrl.Stats())
	})

	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, Status(ctrl))
	})

	router.GET("/ws/stats", liveStats(ctrl, liveInterval))

	router.PUT("/config/:name", func(c *gin.Context) {
		command, ok := configCommands[c.Param("name")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown setting: %s", c.Param("name"))})
			return
		}

		var params map[string]interface{}
		if err := c.ShouldBindJSON(&params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}
		apply(c, ctrl, command, params)
	})

	router.POST("/stream/start", func(c *gin.Context) {
		apply(c, ctrl, CmdStart, nil)
	})

	router.POST("/stream/stop", func(c *gin.Context) {
		apply(c, ctrl, CmdStop, nil)
	})

	return router
}

func apply(c *gin.Context, ctrl Controller, command string, params map[string]interface{}) {
	data, err := Apply(ctrl, command, params)
	if err != nil {
		status := http.StatusBadRequest
		if command == CmdStart || command == CmdStop {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"command": command, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"command": command, "data": data})
}

// Server serves the HTTP control API
type Server struct {
	srv *http.Server
}

// NewServer creates an HTTP server for the control API
func NewServer(addr string, ctrl Controller) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(ctrl),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("control: http api listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("control: http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control: http shutdown: %w", err)
	}
	slog.Info("control: http api stopped")
	return nil
}
