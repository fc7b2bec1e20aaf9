package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/schoolcbt/internal/middleware"
	"github.com/stemsi/schoolcbt/internal/response"
	"github.com/stemsi/schoolcbt/internal/service"
	"github.com/stemsi/schoolcbt/internal/session"
	ws "github.com/stemsi/schoolcbt/internal/websocket"
)

// submitTimeout bounds a submit issued over the socket.
const submitTimeout = 15 * time.Second

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

// WSHandler streams a student's open attempt: countdown ticks out, answers and
// submit in.
type WSHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/student/session/stream?token=
// Upgrades to WebSocket for the open attempt. The attempt must already be started.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	actor := claims.Actor()

	eng, err := h.sessionService.Current(actor)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Str("student_id", actor.UniqueID).
		Str("exam_id", eng.Exam().ID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	events, unsubscribe := eng.Subscribe()
	defer unsubscribe()

	if err := conn.WriteTyped(ws.StateResponse{
		Event:   ws.EventState,
		Paper:   eng.Exam().Paper(),
		Session: eng.Snapshot(),
	}); err != nil {
		return
	}

	// The forwarder owns closing the socket once the attempt is over; that also
	// ends the read loop below.
	go h.forward(conn, events, wsLog)

	for {
		var msg ws.Request
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, actor, &msg)
		case ws.ActionSubmit:
			h.handleSubmit(conn, actor, wsLog)
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		}
	}
}

// forward relays engine events until the engine closes the subscription.
func (h *WSHandler) forward(conn *ws.Conn, events <-chan session.Event, wsLog zerolog.Logger) {
	for ev := range events {
		var err error
		switch ev.Type {
		case session.EventTick:
			err = conn.WriteTyped(ws.TickResponse{Event: ws.EventTick, Remaining: ev.Remaining})
		case session.EventSubmitted:
			resp := ws.SubmittedResponse{Event: ws.EventSubmitted}
			if ev.Result != nil {
				resp.Score, resp.Total = ev.Result.Score, ev.Result.Total
			}
			err = conn.WriteTyped(resp)
		case session.EventError:
			err = conn.WriteError("", ev.Error)
		}
		if err != nil {
			wsLog.Debug().Err(err).Msg("Event write failed")
		}
	}
	conn.CloseNormal("attempt closed")
}

func (h *WSHandler) handleAnswer(conn *ws.Conn, actor service.Actor, msg *ws.Request) {
	if msg.QuestionID == "" {
		_ = conn.WriteError(string(response.ErrValidation), "question_id is required")
		return
	}
	if err := h.sessionService.SetAnswer(actor, msg.QuestionID, msg.Answer); err != nil {
		_, code := classify(err)
		_ = conn.WriteError(string(code), response.GetMessage(code))
		return
	}
	_ = conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, QuestionID: msg.QuestionID})
}

// handleSubmit finalizes the attempt. Success is reported by the forwarder through
// the engine's submitted event.
func (h *WSHandler) handleSubmit(conn *ws.Conn, actor service.Actor, wsLog zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	if _, err := h.sessionService.Submit(ctx, actor); err != nil {
		var perr *session.PersistenceError
		if errors.As(err, &perr) {
			wsLog.Error().Err(err).Msg("Submit over socket failed to persist")
		}
		_, code := classify(err)
		_ = conn.WriteError(string(code), response.GetMessage(code))
	}
}
