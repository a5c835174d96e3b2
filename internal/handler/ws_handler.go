package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
	ws "github.com/stemsi/exstem-portal/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams portal events to the UI and accepts exam actions.
type WSHandler struct {
	portal   *service.PortalService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(portal *service.PortalService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		portal:   portal,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) send(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ws.WriteTyped(w.conn, v)
}

func (w *wsConn) sendError(requestID string, code response.ErrCode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ws.WriteError(w.conn, requestID, string(code), response.GetMessage(code))
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ws.WritePing(w.conn)
}

// PortalStream godoc
// WS /ws/v1/portal/stream
// Pushes a snapshot, then every portal event; reads exam actions.
func (h *WSHandler) PortalStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	out := &wsConn{conn: conn}
	events, unsubscribe := h.portal.Subscribe()
	defer unsubscribe()

	if err := out.send(ws.SnapshotResponse{Event: ws.EventSnapshot, State: h.portal.State()}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go h.pump(ctx, out, events)

	ws.KeepAlive(conn)
	h.log.Info().Str("remote", c.ClientIP()).Msg("Portal stream connected")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				h.log.Debug().Msg("Connection closed")
			}
			return
		}
		h.dispatch(ctx, out, &msg)
	}
}

// pump forwards service events and keeps the connection alive.
func (h *WSHandler) pump(ctx context.Context, out *wsConn, events <-chan service.Event) {
	ticker := time.NewTicker(ws.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := out.send(ev); err != nil {
				h.log.Debug().Err(err).Msg("Event write failed")
				return
			}
		case <-ticker.C:
			if err := out.ping(); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, out *wsConn, msg *ws.RequestPayload) {
	var (
		current int
		err     error
	)

	switch msg.Action {
	case ws.ActionPing:
		_ = out.send(ws.PongResponse{Event: ws.EventPong})
		return
	case ws.ActionAnswer:
		if msg.QuestionID == "" || msg.OptionIndex == nil {
			_ = out.sendError(msg.RequestID, response.ErrInvalidPayload)
			return
		}
		err = h.portal.SelectAnswer(msg.QuestionID, *msg.OptionIndex)
	case ws.ActionMark:
		if msg.QuestionID == "" {
			_ = out.sendError(msg.RequestID, response.ErrInvalidPayload)
			return
		}
		err = h.portal.ToggleMark(msg.QuestionID)
	case ws.ActionNext:
		current, err = h.portal.Next()
	case ws.ActionPrevious:
		current, err = h.portal.Previous()
	case ws.ActionGoto:
		current, err = h.portal.Goto(msg.Question)
	case ws.ActionSubmit:
		res, serr := h.portal.Submit(ctx)
		if serr != nil {
			_, code := classifyError(serr)
			_ = out.sendError(msg.RequestID, code)
			return
		}
		_ = out.send(ws.SubmittedResponse{
			Event:        ws.EventSubmitted,
			RequestID:    msg.RequestID,
			SubmissionID: res.SubmissionID,
		})
		return
	default:
		h.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = out.sendError(msg.RequestID, response.ErrInvalidPayload)
		return
	}

	if err != nil {
		_, code := classifyError(err)
		_ = out.sendError(msg.RequestID, code)
		return
	}
	_ = out.send(ws.AckResponse{
		Event:           ws.EventAck,
		Action:          msg.Action,
		RequestID:       msg.RequestID,
		CurrentQuestion: current,
	})
}
