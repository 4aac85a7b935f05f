package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tbourn/storehub-realtime/internal/auth"
	"github.com/tbourn/storehub-realtime/internal/domain"
	"github.com/tbourn/storehub-realtime/internal/http/middleware"
	"github.com/tbourn/storehub-realtime/internal/realtime"
)

// ChatSocket godoc
// @ID          chatSocket
// @Summary     Open the company chat WebSocket
// @Description Upgrades to a WebSocket bound to the caller's tenant chat group. The bearer token may be sent as an Authorization header or, for browsers, as the access_token query parameter.
// @Tags        Realtime
// @Param       Authorization  header  string  false  "Bearer token"
// @Param       access_token   query   string  false  "Bearer token for clients that cannot set headers"
// @Success     101  {string}  string  "Switching Protocols"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Router      /ws/chat [get]
func (h *Handlers) ChatSocket(c *gin.Context) {
	h.serve(c, h.hub.Chat)
}

// NotificationSocket godoc
// @ID          notificationSocket
// @Summary     Open the order-notification WebSocket
// @Description Upgrades to a WebSocket that receives ReceiveOrderCreated and ReceiveOrderStatusUpdate events for the caller's tenant.
// @Tags        Realtime
// @Param       Authorization  header  string  false  "Bearer token"
// @Param       access_token   query   string  false  "Bearer token for clients that cannot set headers"
// @Success     101  {string}  string  "Switching Protocols"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Router      /ws/notifications [get]
func (h *Handlers) NotificationSocket(c *gin.Context) {
	h.serve(c, h.hub.Notifications)
}

// serve authenticates, upgrades, and drives one connection on ch until
// either side closes it. The handshake is rejected with 401 before the
// upgrade, so an unverified caller never reaches the registry.
func (h *Handlers) serve(c *gin.Context, ch realtime.Channel) {
	lg := middleware.LoggerFrom(c).With().Str("channel", ch.Name()).Logger()

	id, err := h.identify(c.Request)
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, auth.ErrMissingToken) {
			msg = "missing bearer token"
		}
		c.Header("WWW-Authenticate", `Bearer realm="storehub"`)
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, msg)
		return
	}
	c.Set("userID", id.UserID)

	// The upgrade hijacks the connection, so the status has to be recorded
	// first for the access log and metrics.
	c.Status(http.StatusSwitchingProtocols)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error.
		lg.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// The request context ends with the handler; the session outlives
	// neither, but spans should not be cancelled by the hijack.
	ctx := context.WithoutCancel(c.Request.Context())
	s := realtime.NewSession(h.newConnID(), id, h.ws.SendQueue)
	lg = lg.With().Str("conn_id", s.ID).Str("user_id", id.UserID).Str("tenant_id", id.TenantID).Logger()

	if err := ch.Connect(ctx, s); err != nil {
		code, reason := s.CloseInfo()
		h.writeClose(conn, code, reason)
		_ = conn.Close()
		return
	}

	// Hub.Shutdown and a re-registered id both leave the directory without
	// this session; only a session still owning its id is disconnected here.
	defer func() {
		if cur, ok := ch.Directory().Lookup(s.ID); ok && cur == s {
			ch.Disconnect(ctx, s.ID)
		}
	}()

	p := &peer{conn: conn, sess: s, opts: h.ws, log: lg}
	go p.writePump()
	p.readLoop(ctx, ch)

	s.Close(realtime.CloseNormal, "client closed")
}

func (h *Handlers) identify(r *http.Request) (domain.Identity, error) {
	tok, err := auth.TokenFromRequest(r)
	if err != nil {
		return domain.Identity{}, err
	}
	return h.resolver.Resolve(tok)
}

func (h *Handlers) writeClose(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(h.ws.WriteWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

// peer couples one gorilla connection with its realtime session. Only
// writePump writes to conn (control frames from the pong handler aside,
// which gorilla allows concurrently); only readLoop reads.
type peer struct {
	conn *websocket.Conn
	sess *realtime.Session
	opts WSOptions
	log  zerolog.Logger

	awaitingPong atomic.Bool
}

// readLoop decodes inbound commands and hands them to ch until the
// connection fails or is closed.
func (p *peer) readLoop(ctx context.Context, ch realtime.Channel) {
	p.conn.SetReadLimit(p.opts.MaxMessageBytes)
	_ = p.conn.SetReadDeadline(time.Now().Add(p.opts.PongWait))
	p.conn.SetPongHandler(func(string) error {
		p.awaitingPong.Store(false)
		if p.sess.State() == realtime.StateReconnecting {
			p.sess.Transition(realtime.StateConnected)
		}
		return p.conn.SetReadDeadline(time.Now().Add(p.opts.PongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				p.log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(p.opts.PongWait))

		var cmd realtime.Command
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Type == "" {
			if qerr := p.sess.Enqueue(realtime.ReceiveError("malformed command")); qerr != nil {
				return
			}
			continue
		}
		if err := ch.Receive(ctx, p.sess.ID, cmd); err != nil {
			p.log.Debug().Err(err).Str("command", cmd.Type).Msg("command rejected")
		}
		if p.sess.Closed() {
			return
		}
	}
}

// writePump drains the session queue to the socket and keeps the peer alive
// with pings. An unanswered ping marks the session Reconnecting; the read
// deadline eventually ends a peer that never answers.
func (p *peer) writePump() {
	ticker := time.NewTicker(p.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case evt := <-p.sess.Outbound():
			if err := p.write(evt); err != nil {
				p.log.Debug().Err(err).Msg("websocket write failed")
				p.sess.Close(realtime.CloseGoingAway, "write failed")
				return
			}
		case <-ticker.C:
			if p.awaitingPong.Swap(true) {
				p.sess.Transition(realtime.StateReconnecting)
			}
			_ = p.conn.SetWriteDeadline(time.Now().Add(p.opts.WriteWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.sess.Close(realtime.CloseGoingAway, "ping failed")
				return
			}
		case <-p.sess.Done():
			p.flush()
			code, reason := p.sess.CloseInfo()
			_ = p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, reason),
				time.Now().Add(p.opts.WriteWait))
			return
		}
	}
}

// flush writes whatever is already queued, e.g. a final ReceiveError,
// before the close frame.
func (p *peer) flush() {
	for {
		select {
		case evt := <-p.sess.Outbound():
			if err := p.write(evt); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (p *peer) write(evt realtime.Event) error {
	_ = p.conn.SetWriteDeadline(time.Now().Add(p.opts.WriteWait))
	return p.conn.WriteJSON(evt)
}
