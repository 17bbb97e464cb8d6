package domain

import "time"

type RoomID string

// Participant is one roster entry. The roster is ordered by join time;
// the first entry is the room host.
type Participant struct {
	ID       Identity  `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

// MediaState is the per-identity indicator set broadcast to a room.
// At most one identity in a room holds Sharing=true at a time.
type MediaState struct {
	Muted      bool `json:"muted"`
	CameraOff  bool `json:"camera_off"`
	HandRaised bool `json:"hand_raised"`
	Sharing    bool `json:"sharing"`
}
