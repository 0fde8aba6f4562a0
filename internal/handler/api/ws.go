package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"StratLab/internal/usecase"
	xhttp "StratLab/pkg/http"
	xlogger "StratLab/pkg/logger"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// RunEventsHandler streams run lifecycle events over a websocket.
// ?run_id= restricts the stream to a single run.
type RunEventsHandler struct {
	logger   *xlogger.Logger
	hub      *usecase.RunHub
	upgrader websocket.Upgrader
}

func NewRunEventsHandler(logger *xlogger.Logger, hub *usecase.RunHub) *RunEventsHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &RunEventsHandler{
		logger: logger,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *RunEventsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/ws/runs", h.Stream)
}

func (h *RunEventsHandler) Stream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already wrote the error response
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	runID := c.QueryParam("run_id")
	events, cancel := h.hub.Subscribe()
	defer cancel()
	h.logger.Debug("run stream opened", xlogger.String("run_id", runID), xlogger.Int("subscribers", h.hub.Subscribers()))

	// the read loop only drains control frames and notices the client leaving
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if runID != "" && ev.RunID != runID {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("run stream write failed", xlogger.Error(err))
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

var _ xhttp.Handler = (*RunEventsHandler)(nil)
