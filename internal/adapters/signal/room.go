package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/opencrew/huddle/internal/app"
	"github.com/opencrew/huddle/internal/core"
	"github.com/opencrew/huddle/internal/domain"
)

func (ctl *Controller) handleRoomJoin(id domain.Identity, conn *WsConn, data []byte) {
	var p core.RoomJoin
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if p.Room == "" {
		ctl.sendError(conn, "missing room")
		return
	}

	name := p.Name
	if name == "" {
		name = string(id)
	}
	user, err := domain.NewUser(id, name)
	if err != nil {
		ctl.sendError(conn, "invalid_name")
		return
	}

	log.Info().Str("module", "signal").Str("id", string(id)).Str("room", string(p.Room)).Msg("join")
	if err := ctl.Orch.Rooms.Join(p.Room, user); err != nil {
		if errors.Is(err, app.ErrRoomFull) {
			ctl.sendError(conn, "room_full")
			return
		}
		ctl.sendError(conn, "join_failed")
		return
	}
}

// handleRoomLeave removes the member; the connection itself stays up.
func (ctl *Controller) handleRoomLeave(id domain.Identity, conn *WsConn, data []byte) {
	var p core.RoomLeave
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad leave payload")
		return
	}
	log.Info().Str("module", "signal").Str("id", string(id)).Str("room", string(p.Room)).Msg("leave")
	ctl.Orch.Rooms.Leave(p.Room, id)
}

func (ctl *Controller) handleRoomMedia(id domain.Identity, conn *WsConn, data []byte) {
	var p core.RoomMedia
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad media payload")
		return
	}
	ctl.Orch.Rooms.SetMedia(p.Room, id, p.Muted, p.CameraOff)
}

func (ctl *Controller) handleHandRaise(id domain.Identity, conn *WsConn, data []byte) {
	var p core.RoomHandRaise
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad hand-raise payload")
		return
	}
	ctl.Orch.Rooms.SetHandRaised(p.Room, id, p.Raised)
}

func (ctl *Controller) handleShareStart(id domain.Identity, conn *WsConn, data []byte) {
	var p core.ShareSignal
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad share payload")
		return
	}
	ctl.Orch.Rooms.StartShare(p.Room, id)
}

func (ctl *Controller) handleShareStop(id domain.Identity, conn *WsConn, data []byte) {
	var p core.ShareSignal
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad share payload")
		return
	}
	ctl.Orch.Rooms.StopShare(p.Room, id)
}

func (ctl *Controller) handleChat(id domain.Identity, conn *WsConn, data []byte) {
	var p core.RoomChat
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad chat payload")
		return
	}
	if p.Message == "" {
		return
	}
	name := string(id)
	if sess, ok := ctl.Orch.Presence.Lookup(id); ok {
		name = sess.User().Name
	}
	ctl.Orch.Rooms.Chat(p.Room, id, name, p.Message)
}
