package httpServer

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"framecast/config"
	"framecast/internal/camera"
	"framecast/internal/codec"
	"framecast/internal/wsserver"
)

// Server wraps the HTTP status server with dependencies
type Server struct {
	router     *gin.Engine
	cfg        *config.Config
	codec      *codec.Manager
	cameras    *camera.Manager
	packets    *wsserver.PacketStreamServer
	frameIndex *atomic.Uint64
	startedAt  time.Time
}

// New creates a new HTTP status server
func New(cfg *config.Config, codecMgr *codec.Manager, cameras *camera.Manager,
	packets *wsserver.PacketStreamServer, frameIndex *atomic.Uint64) *Server {
	s := &Server{
		cfg:        cfg,
		codec:      codecMgr,
		cameras:    cameras,
		packets:    packets,
		frameIndex: frameIndex,
		startedAt:  time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	{
		api.GET("/ping", s.handlePing)
		api.GET("/v1/status", s.handleStatus)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router = router
}

// Run starts the HTTP server (blocking)
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Handler implementations

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
		"time":    time.Now().Unix(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	handle := s.codec.GetConfig()
	codecCfg := handle.Config()
	handle.Release()

	cam := s.cameras.Get()

	c.JSON(http.StatusOK, gin.H{
		"version":     config.Version,
		"uptime":      int(time.Since(s.startedAt).Seconds()),
		"frame_index": s.frameIndex.Load(),
		"renderers":   s.cfg.Renderers,
		"viewers":     s.packets.ClientCount(),
		"camera": gin.H{
			"width":  cam.Width,
			"height": cam.Height,
		},
		"codec": gin.H{
			"codec":      codecCfg.Codec,
			"resolution": fmt.Sprintf("%dx%d", codecCfg.Width, codecCfg.Height),
			"bitrate":    codecCfg.Bitrate,
			"fps":        codecCfg.FPS,
			"keyint":     codecCfg.KeyframeInterval,
			"preset":     codecCfg.Preset,
			"tune":       codecCfg.Tune,
		},
	})
}
