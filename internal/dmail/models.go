package dmail

import "time"

// Peer is a conversation partner as returned by the directory service.
type Peer struct {
	ID         string `json:"_id"`
	FullName   string `json:"fullName"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// Message is a single direct message. Image carries the opaque attachment payload.
type Message struct {
	ID         string    `json:"_id,omitempty"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
}

// SendRequest is the outbound draft. It is never inserted into the timeline;
// only the server echo is.
type SendRequest struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// Permission is the notification surface's current grant state.
type Permission string

const (
	PermissionGranted      Permission = "granted"
	PermissionDenied       Permission = "denied"
	PermissionUndetermined Permission = "undetermined"
)

// ParsePermission maps a config value onto a Permission. Unknown values are
// undetermined.
func ParsePermission(value string) Permission {
	switch Permission(value) {
	case PermissionGranted, PermissionDenied:
		return Permission(value)
	default:
		return PermissionUndetermined
	}
}

// Notification is the side effect requested for an unread live message.
type Notification struct {
	Title string
	Body  string
	Icon  string
}

func clonePeers(peers []Peer) []Peer {
	if peers == nil {
		return nil
	}
	out := make([]Peer, len(peers))
	copy(out, peers)
	return out
}

func cloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}
