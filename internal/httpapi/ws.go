package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"loadsignal.dev/collector/internal/dispatch"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The read surface is open cross-origin; auth happens via API key.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	// Close codes from the push protocol contract.
	closeAuthFailure = 1008
	closeCapacity    = 1013

	writeDeadline = 10 * time.Second
)

type clientFrame struct {
	Type string `json:"type"`
}

// handleWebSocket upgrades the connection, registers it with the
// dispatcher under the query-parameter filter, and pumps frames until the
// peer goes away or misses its pong window.
func (s *Server) handleWebSocket(c echo.Context) error {
	if err := s.authorizeWS(c); err != nil {
		if errors.Is(err, errWSRejected) {
			return nil
		}
		return err
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}

	conn, err := s.dispatcher.Register(filterFromQuery(c))
	if err != nil {
		message := websocket.FormatCloseMessage(closeCapacity, "capacity")
		_ = ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeDeadline))
		_ = ws.Close()
		return nil
	}
	defer func() {
		s.dispatcher.Unregister(conn)
		_ = ws.Close()
	}()

	done := make(chan struct{})

	// Read pump: consumes pongs and client frames, extends the liveness
	// deadline on each.
	_ = ws.SetReadDeadline(time.Now().Add(dispatch.PongDeadline))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(dispatch.PongDeadline))
	})
	go func() {
		defer close(done)
		for {
			var frame clientFrame
			if err := ws.ReadJSON(&frame); err != nil {
				return
			}
			if frame.Type == "pong" {
				_ = ws.SetReadDeadline(time.Now().Add(dispatch.PongDeadline))
			}
		}
	}()

	// Write pump: article frames from the dispatcher plus periodic pings.
	heartbeat := time.NewTicker(dispatch.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			return nil
		case payload, ok := <-conn.Send:
			if !ok {
				return nil
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return nil
			}
		case <-heartbeat.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
				return nil
			}
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return nil
			}
		}
	}
}

// authorizeWS mirrors the API-key check for the upgrade request, closing
// with 1008 on failure instead of a JSON error body.
func (s *Server) authorizeWS(c echo.Context) error {
	hasKeys, err := s.pool.HasAPIKeys(c.Request().Context())
	if err != nil {
		return internalError(c, "failed to authorize request")
	}
	if !hasKeys {
		return nil
	}

	presented := c.Request().Header.Get(apiKeyHeader)
	if presented == "" {
		presented = c.QueryParam("api_key")
	}
	if presented == "" {
		return wsAuthReject(c)
	}
	key, err := s.pool.APIKeyByHash(c.Request().Context(), HashAPIKey(presented))
	if err != nil || key == nil {
		return wsAuthReject(c)
	}
	return nil
}

// errWSRejected marks an upgrade that was already answered with a close
// frame; the handler has nothing further to send.
var errWSRejected = errors.New("websocket rejected")

func wsAuthReject(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errWSRejected
	}
	message := websocket.FormatCloseMessage(closeAuthFailure, "auth failure")
	_ = ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeDeadline))
	_ = ws.Close()
	return errWSRejected
}
