package core

import "github.com/opencrew/huddle/internal/domain"

// EventKind tags every signal frame. Dispatch is a table keyed by kind,
// not string branching in handler bodies.
type EventKind string

const (
	EvIncomingCall  EventKind = "incoming-call"
	EvCallAccept    EventKind = "call-accept"
	EvCallReject    EventKind = "call-reject"
	EvCallEnd       EventKind = "call-end"
	EvNegOffer      EventKind = "negotiation-offer"
	EvNegAnswer     EventKind = "negotiation-answer"
	EvNegCandidate  EventKind = "negotiation-candidate"
	EvRoomJoin      EventKind = "room-join"
	EvRoomLeave     EventKind = "room-leave"
	EvRoomRoster    EventKind = "room-roster"
	EvRoomMedia     EventKind = "room-media-state"
	EvRoomHandRaise EventKind = "room-hand-raise"
	EvShareStart    EventKind = "room-screen-share-start"
	EvShareStop     EventKind = "room-screen-share-stop"
	EvRoomChat      EventKind = "room-chat-message"
	EvError         EventKind = "error"
)

// Candidate is a discovered network path for peer negotiation,
// relayed verbatim between the two endpoints.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// Envelope carries only the kind; each handler re-parses the full payload.
type Envelope struct {
	Kind EventKind `json:"type"`
}

// IncomingCall announces a 1:1 call to the callee.
type IncomingCall struct {
	Kind     EventKind       `json:"type"`
	From     domain.Identity `json:"from"`
	FromName string          `json:"from_name"`
}

// CallSignal covers accept/reject/end: lifecycle transitions addressed
// to the other side of a 1:1 call.
type CallSignal struct {
	Kind EventKind       `json:"type"`
	From domain.Identity `json:"from,omitempty"`
	To   domain.Identity `json:"to"`
}

// Negotiation carries offer/answer descriptions and candidates.
// Room is empty for 1:1 calls and set for mesh negotiation.
type Negotiation struct {
	Kind      EventKind       `json:"type"`
	From      domain.Identity `json:"from,omitempty"`
	To        domain.Identity `json:"to"`
	Room      domain.RoomID   `json:"room,omitempty"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate *Candidate      `json:"candidate,omitempty"`
}

type RoomJoin struct {
	Kind EventKind     `json:"type"`
	Room domain.RoomID `json:"room"`
	Name string        `json:"name"`
}

type RoomLeave struct {
	Kind EventKind     `json:"type"`
	Room domain.RoomID `json:"room"`
}

// RoomRoster is broadcast to the whole room (joiner included) on every
// membership change. Host is the first joiner still present.
type RoomRoster struct {
	Kind         EventKind            `json:"type"`
	Room         domain.RoomID        `json:"room"`
	Host         domain.Identity      `json:"host"`
	Participants []domain.Participant `json:"participants"`
}

type RoomMedia struct {
	Kind      EventKind       `json:"type"`
	Room      domain.RoomID   `json:"room"`
	From      domain.Identity `json:"from,omitempty"`
	Muted     bool            `json:"muted"`
	CameraOff bool            `json:"camera_off"`
}

type RoomHandRaise struct {
	Kind   EventKind       `json:"type"`
	Room   domain.RoomID   `json:"room"`
	From   domain.Identity `json:"from,omitempty"`
	Raised bool            `json:"raised"`
}

// ShareSignal covers screen-share start and stop. On start the backend
// first broadcasts a stop for any previous sharer (single-sharer rule).
type ShareSignal struct {
	Kind EventKind       `json:"type"`
	Room domain.RoomID   `json:"room"`
	From domain.Identity `json:"from,omitempty"`
}

type RoomChat struct {
	Kind     EventKind       `json:"type"`
	Room     domain.RoomID   `json:"room"`
	From     domain.Identity `json:"from,omitempty"`
	FromName string          `json:"from_name,omitempty"`
	Message  string          `json:"message"`
}

type ErrorSignal struct {
	Kind  EventKind `json:"type"`
	Error string    `json:"error"`
}
