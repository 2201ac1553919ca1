package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"leadchat/internal/session"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 25 * time.Second
)

type wsClientCommand struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type wsConn struct {
	ws     *websocket.Conn
	sendMu sync.Mutex
}

func (c *wsConn) send(payload any) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.ws.WriteJSON(payload)
}

func (c *wsConn) ping() error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(wsWriteWait))
}

// sessionWS streams session events to the browser and accepts message and
// typing commands on the same socket.
func (s *server) sessionWS(w http.ResponseWriter, req *http.Request) {
	c, ok := s.lookup(w, req)
	if !ok {
		return
	}
	ws, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.logger.Warn("upgrade websocket failed", "session_id", c.ID(), "error", err)
		return
	}
	defer ws.Close()
	conn := &wsConn{ws: ws}

	events, unsubscribe := c.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	if err := conn.send(map[string]any{"type": "snapshot", "snapshot": c.Snapshot()}); err != nil {
		return
	}
	go s.readCommands(ctx, cancel, conn, c)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.send(map[string]any{"type": "closed", "session_id": c.ID()})
				conn.sendMu.Lock()
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(wsWriteWait))
				conn.sendMu.Unlock()
				return
			}
			if err := conn.send(ev); err != nil {
				s.logger.Info("session websocket write failed", "session_id", c.ID(), "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}

func (s *server) readCommands(ctx context.Context, cancel context.CancelFunc, conn *wsConn, c *session.Controller) {
	defer cancel()

	ws := conn.ws
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// One message per socket is in flight; later ones get the busy notice.
	var inflight atomic.Bool
	for {
		msgType, payload, err := ws.ReadMessage()
		if err != nil {
			s.logger.Info("session websocket closed", "session_id", c.ID())
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
		if msgType != websocket.TextMessage {
			continue
		}

		var cmd wsClientCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			_ = conn.send(map[string]any{"type": "error", "message": "invalid command"})
			continue
		}
		switch strings.ToLower(strings.TrimSpace(cmd.Type)) {
		case "message":
			if !inflight.CompareAndSwap(false, true) {
				_ = conn.send(wsError(c, session.ErrAgentBusy))
				continue
			}
			go func(text string) {
				defer inflight.Store(false)
				if _, err := c.HandleMessage(ctx, text); err != nil {
					_ = conn.send(wsError(c, err))
				}
			}(cmd.Text)
		case "typing":
			c.Touch()
		default:
			_ = conn.send(map[string]any{"type": "error", "message": "unknown command: " + cmd.Type})
		}
	}
}

func wsError(c *session.Controller, err error) map[string]any {
	return map[string]any{"type": "error", "error": err.Error(), "message": c.Notice(err)}
}
