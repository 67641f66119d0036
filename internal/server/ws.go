package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/droidglass/droidglass/internal/dispatch"
	"github.com/droidglass/droidglass/internal/recorder"
	"github.com/droidglass/droidglass/internal/store"
	"github.com/droidglass/droidglass/internal/util"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Local control server, UI is served from the same host
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// inboundMessage is one control-bar message from the browser.
type inboundMessage struct {
	Type    string          `json:"type"`
	Action  string          `json:"action,omitempty"`
	Pointer *pointerPayload `json:"pointer,omitempty"`
	Active  bool            `json:"active,omitempty"`
}

type pointerPayload struct {
	Button int    `json:"button"`
	Phase  string `json:"phase"`
}

// outboundMessage is one message relayed to the browser: a host-UI
// primitive request, a recording state push, or a believed-state snapshot.
type outboundMessage struct {
	Type    string      `json:"type"`
	Request string      `json:"request,omitempty"`
	Name    string      `json:"name,omitempty"`
	Mime    string      `json:"mime,omitempty"`
	Data    string      `json:"data,omitempty"`
	State   interface{} `json:"state,omitempty"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan outboundMessage
	done chan struct{}
}

func (c *wsClient) enqueue(msg outboundMessage) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		util.GetLogger().Warn("Dropping outbound message, client send buffer full", "client", c.id, "type", msg.Type)
	}
}

// wsSurface relays host-UI primitives over the websocket; the browser-side
// control bar executes them against the real DOM.
type wsSurface struct {
	client  *wsClient
	serial  string
	history *store.Store
}

func (s *wsSurface) RequestFullscreen() error {
	s.client.enqueue(outboundMessage{Type: "fullscreen", Request: "enter"})
	return nil
}

func (s *wsSurface) ExitFullscreen() error {
	s.client.enqueue(outboundMessage{Type: "fullscreen", Request: "exit"})
	return nil
}

func (s *wsSurface) ResizeVideoToFill() {
	s.client.enqueue(outboundMessage{Type: "resize-video"})
}

func (s *wsSurface) FocusVideo() {
	s.client.enqueue(outboundMessage{Type: "focus-video"})
}

func (s *wsSurface) SaveArtifact(name, mimeType string, data []byte) error {
	s.client.enqueue(outboundMessage{
		Type: "save",
		Name: name,
		Mime: mimeType,
		Data: base64.StdEncoding.EncodeToString(data),
	})
	if s.history != nil {
		if err := s.history.RecordScreenshot(s.serial, name, len(data)); err != nil {
			util.GetLogger().Warn("Failed to record screenshot history", "error", err)
		}
	}
	return nil
}

func (s *Server) handleControlSocket(c *gin.Context) {
	logger := util.GetLogger()
	serial := c.Param("serial")

	sess := s.keeper.Session(serial)
	if sess == nil {
		// Browser clients address a device by the opaque session id from
		// /api/devices rather than the raw adb serial.
		if sess = s.keeper.SessionByID(serial); sess != nil {
			serial = sess.Serial()
		}
	}
	rec := s.keeper.Recorder(serial)
	if sess == nil || rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session for device"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("Websocket upgrade failed", "serial", serial, "error", err)
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan outboundMessage, 64),
		done: make(chan struct{}),
	}

	dispatcher := dispatch.New(&wsSurface{client: client, serial: serial, history: s.history}, rec)
	dispatcher.SetSession(sess)
	dispatcher.SetResultHook(func(action string, actionErr error) {
		if s.history != nil {
			if err := s.history.RecordAction(serial, action, actionErr); err != nil {
				logger.Warn("Failed to record action history", "error", err)
			}
		}
		// Let the UI re-render whatever belief the action changed.
		client.enqueue(outboundMessage{Type: "state", State: dispatcher.State().Get()})
	})

	// Push recording state changes so the control bar can show the timer.
	unsubscribe := rec.OnStateChange(func(st recorder.State) {
		client.enqueue(outboundMessage{Type: "recording", State: st})
	})

	logger.Info("Control client connected", "serial", serial, "client", client.id)

	go client.writePump()
	client.readPump(dispatcher)

	unsubscribe()
	dispatcher.Close()
	close(client.done)
	logger.Info("Control client disconnected", "serial", serial, "client", client.id)
}

func (c *wsClient) readPump(dispatcher *dispatch.Dispatcher) {
	logger := util.GetLogger()
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("Websocket read failed", "client", c.id, "error", err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.Warn("Invalid control message", "client", c.id, "error", err)
			continue
		}

		switch msg.Type {
		case "action":
			dispatcher.Execute(msg.Action, pointerEvent(msg.Pointer))
		case "fullscreenchange":
			// The browser observation is authoritative for the
			// fullscreen facet.
			dispatcher.SyncFullscreen(msg.Active)
		default:
			logger.Warn("Unknown message type", "client", c.id, "type", msg.Type)
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func pointerEvent(p *pointerPayload) *dispatch.PointerEvent {
	if p == nil {
		return nil
	}
	phase := dispatch.PointerPress
	if p.Phase == "release" {
		phase = dispatch.PointerRelease
	}
	return &dispatch.PointerEvent{Button: p.Button, Phase: phase}
}
