package app

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opencrew/huddle/internal/core"
	"github.com/opencrew/huddle/internal/domain"
)

// room is the server-side view of one meeting: an ordered roster plus
// per-identity media indicators. Membership is mutated only by
// join/leave, never rewritten wholesale. Callers hold Rooms.mu.
type room struct {
	id     domain.RoomID
	roster []domain.Participant
	media  map[domain.Identity]domain.MediaState
	sharer domain.Identity
}

func newRoom(id domain.RoomID) *room {
	return &room{
		id:    id,
		media: make(map[domain.Identity]domain.MediaState),
	}
}

// host is the earliest joiner still present; empty while the room is.
func (r *room) host() domain.Identity {
	if len(r.roster) == 0 {
		return ""
	}
	return r.roster[0].ID
}

func (r *room) contains(id domain.Identity) bool {
	for _, p := range r.roster {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (r *room) add(user *domain.User) {
	if r.contains(user.ID) {
		return
	}
	r.roster = append(r.roster, domain.Participant{
		ID:       user.ID,
		Name:     user.Name,
		JoinedAt: time.Now(),
	})
	r.media[user.ID] = domain.MediaState{}
	log.Info().Str("module", "app.room").Str("room", string(r.id)).Str("id", string(user.ID)).Msg("member joined")
}

func (r *room) remove(id domain.Identity) bool {
	for i, p := range r.roster {
		if p.ID == id {
			r.roster = append(r.roster[:i], r.roster[i+1:]...)
			delete(r.media, id)
			if r.sharer == id {
				r.sharer = ""
			}
			log.Info().Str("module", "app.room").Str("room", string(r.id)).Str("id", string(id)).Msg("member left")
			return true
		}
	}
	return false
}

func (r *room) rosterEvent() core.RoomRoster {
	parts := make([]domain.Participant, len(r.roster))
	copy(parts, r.roster)
	return core.RoomRoster{
		Kind:         core.EvRoomRoster,
		Room:         r.id,
		Host:         r.host(),
		Participants: parts,
	}
}
