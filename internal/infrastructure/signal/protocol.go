package signal

import (
	"encoding/json"
	"fmt"

	"roomhub/internal/core/domain"
)

// Engine-specific close codes, beyond the standard RFC 6455 set.
const (
	CloseInvalidCredential  = 4001
	CloseRoomNotFound       = 4004
	CloseRegistrationFailed = 4005
	CloseRoomDeleted        = 4006
)

// InboundType enumerates the client-to-engine message kinds. Unknown types
// are dropped silently so newer clients do not break older engines.
type InboundType string

const (
	InboundChatMessage  InboundType = "chat_message"
	InboundOffer        InboundType = "webrtc_offer"
	InboundAnswer       InboundType = "webrtc_answer"
	InboundICECandidate InboundType = "webrtc_ice_candidate"
	InboundVideoStatus  InboundType = "video_status"
)

// IsSignaling reports whether the type is routed point-to-point instead of
// broadcast to the room.
func (t InboundType) IsSignaling() bool {
	switch t {
	case InboundOffer, InboundAnswer, InboundICECandidate:
		return true
	}
	return false
}

// OutboundType enumerates the engine-to-client message kinds. Relayed
// signaling frames keep their inbound type and are not listed here.
type OutboundType string

const (
	OutboundMessage      OutboundType = "message"
	OutboundNotification OutboundType = "notification"
	OutboundMemberCount  OutboundType = "member_count"
	OutboundVideoStatus  OutboundType = "video_status"
	// OutboundCurrentParticipants is sent once, at join, only to the joining
	// connection. It lists identities, not streaming state: a client joining
	// mid-session cannot learn current streamers from it (known product gap).
	OutboundCurrentParticipants OutboundType = "current_participants"
)

const (
	VideoStatusStarted = "started"
	VideoStatusStopped = "stopped"
)

// InboundEnvelope carries the discriminator and the fields shared by the
// known inbound kinds. The raw frame is retained because signaling payloads
// are relayed verbatim.
type InboundEnvelope struct {
	Type         InboundType   `json:"type"`
	Message      string        `json:"message,omitempty"`
	Status       string        `json:"status,omitempty"`
	TargetUserID domain.UserID `json:"target_user_id,omitempty"`

	raw json.RawMessage
}

// DecodeInbound parses a client frame. Malformed JSON is an error; the caller
// drops the frame without closing the connection.
func DecodeInbound(data []byte) (*InboundEnvelope, error) {
	var env InboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("malformed frame: missing type")
	}
	env.raw = append(json.RawMessage(nil), data...)
	return &env, nil
}

// Raw returns the original frame bytes for verbatim relay.
func (e *InboundEnvelope) Raw() json.RawMessage {
	return e.raw
}

type chatFrame struct {
	Type     OutboundType `json:"type"`
	Message  string       `json:"message"`
	Username string       `json:"username"`
}

type notificationFrame struct {
	Type    OutboundType `json:"type"`
	Level   string       `json:"level"`
	Message string       `json:"message"`
}

type memberCountFrame struct {
	Type  OutboundType `json:"type"`
	Count int64        `json:"count"`
}

type videoStatusFrame struct {
	Type     OutboundType  `json:"type"`
	Status   string        `json:"status"`
	UserID   domain.UserID `json:"user_id"`
	Username string        `json:"username"`
}

type participantsFrame struct {
	Type         OutboundType          `json:"type"`
	Participants []domain.UserIdentity `json:"participants"`
}

func encodeFrame(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// All frame structs are marshal-safe; this is unreachable.
		return json.RawMessage(`{}`)
	}
	return data
}

// ChatFrame is a chat-level broadcast, either from a user or from the engine
// itself (join/leave announcements attributed to SystemUsername).
func ChatFrame(message, username string) json.RawMessage {
	return encodeFrame(chatFrame{Type: OutboundMessage, Message: message, Username: username})
}

func NotificationFrame(level, message string) json.RawMessage {
	return encodeFrame(notificationFrame{Type: OutboundNotification, Level: level, Message: message})
}

func MemberCountFrame(count int64) json.RawMessage {
	return encodeFrame(memberCountFrame{Type: OutboundMemberCount, Count: count})
}

func VideoStatusFrame(status string, user domain.UserIdentity) json.RawMessage {
	return encodeFrame(videoStatusFrame{Type: OutboundVideoStatus, Status: status, UserID: user.ID, Username: user.Username})
}

func ParticipantsFrame(participants []domain.UserIdentity) json.RawMessage {
	if participants == nil {
		participants = []domain.UserIdentity{}
	}
	return encodeFrame(participantsFrame{Type: OutboundCurrentParticipants, Participants: participants})
}
