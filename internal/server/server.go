// Package server exposes the control-bar backend to the browser: a small
// JSON API for device discovery and a websocket channel per device that
// carries control actions in and host-UI primitives out.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/droidglass/droidglass/internal/devices"
	"github.com/droidglass/droidglass/internal/store"
	"github.com/droidglass/droidglass/internal/util"
)

// Server is the HTTP/websocket control server.
type Server struct {
	addr    string
	keeper  *devices.Keeper
	history *store.Store
	engine  *gin.Engine
}

// New builds a server around a device keeper. The history store may be nil,
// in which case nothing is persisted.
func New(addr string, keeper *devices.Keeper, history *store.Store) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		addr:    addr,
		keeper:  keeper,
		history: history,
		engine:  engine,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.engine.Group("/api")
	api.GET("/devices", s.handleListDevices)
	api.POST("/devices/:serial/connect", s.handleConnectStreams)
	api.GET("/history", s.handleHistory)

	s.engine.GET("/ws/:serial", s.handleControlSocket)
}

// Run blocks serving until the listener fails.
func (s *Server) Run() error {
	util.GetLogger().Info("Control server listening", "addr", s.addr)
	return errors.Wrap(s.engine.Run(s.addr), "control server stopped")
}

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

type deviceSummary struct {
	Serial    string `json:"serial"`
	Name      string `json:"name"`
	SessionID string `json:"sessionId"`
}

func (s *Server) handleListDevices(c *gin.Context) {
	serials := s.keeper.Serials()
	summaries := make([]deviceSummary, 0, len(serials))
	for _, serial := range serials {
		sess := s.keeper.Session(serial)
		if sess == nil {
			continue
		}
		summaries = append(summaries, deviceSummary{
			Serial:    serial,
			Name:      sess.Name(),
			SessionID: s.keeper.SessionID(serial),
		})
	}
	c.JSON(http.StatusOK, gin.H{"devices": summaries})
}

type connectRequest struct {
	Addr string `json:"addr" binding:"required"`
}

// handleConnectStreams attaches a forwarded scrcpy endpoint to a device
// session. The bootstrap that pushes the scrcpy server and sets up the adb
// forward posts here once the endpoint is listening.
func (s *Server) handleConnectStreams(c *gin.Context) {
	serial := c.Param("serial")
	if s.keeper.Session(serial) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session for device"})
		return
	}

	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.keeper.ConnectStreams(serial, req.Addr); err != nil {
		util.GetLogger().Error("Failed to attach device streams", "serial", serial, "addr", req.Addr, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to attach device streams"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "attached"})
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusOK, gin.H{"actions": []store.ActionRecord{}})
		return
	}
	records, err := s.history.RecentActions(50)
	if err != nil {
		util.GetLogger().Error("Failed to load action history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": records})
}
