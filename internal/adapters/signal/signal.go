package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/opencrew/huddle/internal/app"
	"github.com/opencrew/huddle/internal/core"
	"github.com/opencrew/huddle/internal/domain"
)

// handlerFunc processes one inbound frame from an identified connection.
type handlerFunc func(id domain.Identity, conn *WsConn, data []byte)

// Controller owns the WS endpoint: one connection per identity, pumps,
// and the event-kind dispatch table.
type Controller struct {
	Orch *app.Orchestrator

	limiter  *RateLimiter
	handlers map[core.EventKind]handlerFunc
}

func NewController(orch *app.Orchestrator) *Controller {
	ctl := &Controller{
		Orch:    orch,
		limiter: NewRateLimiter(64, time.Second),
	}
	ctl.handlers = map[core.EventKind]handlerFunc{
		core.EvCallAccept:    ctl.handleCallSignal,
		core.EvCallReject:    ctl.handleCallSignal,
		core.EvCallEnd:       ctl.handleCallSignal,
		core.EvNegOffer:      ctl.handleNegotiation,
		core.EvNegAnswer:     ctl.handleNegotiation,
		core.EvNegCandidate:  ctl.handleNegotiation,
		core.EvRoomJoin:      ctl.handleRoomJoin,
		core.EvRoomLeave:     ctl.handleRoomLeave,
		core.EvRoomMedia:     ctl.handleRoomMedia,
		core.EvRoomHandRaise: ctl.handleHandRaise,
		core.EvShareStart:    ctl.handleShareStart,
		core.EvShareStop:     ctl.handleShareStop,
		core.EvRoomChat:      ctl.handleChat,
	}
	return ctl
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and registers the identity in the
// presence registry. A second connection from the same identity
// replaces the first (last connection wins).
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	id := domain.Identity(c.GetString("identity"))
	name := c.DefaultQuery("name", string(id))
	log.Info().Str("module", "signal").Str("id", string(id)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := newWsConn(ws)
	user, err := domain.NewUser(id, name)
	if err != nil {
		user = &domain.User{ID: id, Name: string(id)}
	}
	sess := core.NewSession(user, conn)

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Presence.Bind(id, sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, id, sess, conn)
}

func (ctl *Controller) dispatch(id domain.Identity, c *WsConn, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}
	h, ok := ctl.handlers[env.Kind]
	if !ok {
		log.Warn().Str("module", "signal").Str("type", string(env.Kind)).Msg("unknown signal")
		return
	}
	h(id, c, data)
}

func (ctl *Controller) sendJSON(c *WsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *WsConn, msg string) {
	ctl.sendJSON(c, core.ErrorSignal{Kind: core.EvError, Error: msg})
}
