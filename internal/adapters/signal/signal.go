package signal

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/windchat/relay/internal/app"
	"github.com/windchat/relay/internal/config"
	"github.com/windchat/relay/internal/core"
	"github.com/windchat/relay/internal/domain"
	"github.com/windchat/relay/internal/metrics"
)

var ErrBackpressure = errors.New("backpressure")

// SignalWSController is the event router: it owns the websocket endpoint,
// validates inbound events, drives the room registry and fans out the
// resulting notifications.
type SignalWSController struct {
	Rooms    *core.Registry
	Sessions *app.SessionRegistry

	cfg      *config.Config
	upgrader websocket.Upgrader
}

func NewSignalWSController(cfg *config.Config, rooms *core.Registry, sessions *app.SessionRegistry) *SignalWSController {
	ctl := &SignalWSController{
		Rooms:    rooms,
		Sessions: sessions,
		cfg:      cfg,
	}
	ctl.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return originAllowed(cfg.AllowedOrigins, r) },
	}
	return ctl
}

// originAllowed mirrors the CORS allowlist for the upgrade request.
// Requests without an Origin header (curl, native clients) pass.
func originAllowed(allowed []string, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		host := strings.TrimPrefix(strings.TrimPrefix(a, "https://"), "http://")
		if host != "" && strings.Contains(origin, host) {
			return true
		}
	}
	return false
}

// WsSignalConn wraps one websocket with a buffered outbound channel.
// Sends are fire-and-forget: a full buffer or a closed connection drops
// the event instead of blocking the event handler.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleSignal upgrades the request and runs the connection's session
// until the transport closes.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	sid := domain.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.cfg.SendBuffer),
	}
	ws.SetReadLimit(ctl.cfg.ReadLimit)

	sess := core.NewMemberSession(domain.NewSession(sid), conn)
	ctl.Sessions.Bind(sid, sess)
	metrics.ActiveConnections.Inc()

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}

func (ctl *SignalWSController) broadcast(targets []core.MemberSession, v any) {
	for _, ms := range targets {
		ctl.sendJSON(ms.Signal(), v)
	}
}

func (ctl *SignalWSController) broadcastExcept(targets []core.MemberSession, skip domain.ConnID, v any) {
	for _, ms := range targets {
		if ms.Meta().ID == skip {
			continue
		}
		ctl.sendJSON(ms.Signal(), v)
	}
}
