package domain

import (
	"context"
	"time"
)

// SessionState is the lifecycle state of the chat session.
type SessionState string

const (
	StateNotReady     SessionState = "not_ready"
	StateAwaitingScan SessionState = "awaiting_scan"
	StateReady        SessionState = "ready"
	StateDisconnected SessionState = "disconnected"
)

// PairingToken is the scannable credential for authenticating a new session.
// Image is a base64 PNG data URL rendering of Code, empty if rendering failed.
type PairingToken struct {
	Code  string
	Image string
}

// MediaKind selects how an outbound payload is tagged on the wire.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaDocument MediaKind = "document"
)

// Media is one outbound media payload.
type Media struct {
	Data     []byte
	Mimetype string
	Filename string
	Caption  string
	Kind     MediaKind
}

// SendResult is what the session client reports for a delivered message.
type SendResult struct {
	MessageID string
	Timestamp time.Time
}

// Button is one quick-reply button.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Session is the one live chat-automation connection. Implementations
// serialize their own protocol operations; callers share a single instance.
type Session interface {
	CurrentState() SessionState
	PairingToken() (PairingToken, bool)

	// IsRegistered reports whether the canonical number can receive messages.
	IsRegistered(ctx context.Context, phone string) (bool, error)

	SendText(ctx context.Context, phone string, body string) (SendResult, error)
	SendMedia(ctx context.Context, phone string, m Media) (SendResult, error)
	SendPoll(ctx context.Context, phone string, question string, options []string, multi bool) (SendResult, error)
	SendButtons(ctx context.Context, phone string, body, title, footer string, buttons []Button) (SendResult, error)

	// Reply addresses the originating chat directly, bypassing number
	// resolution. Used for webhook auto-replies.
	Reply(ctx context.Context, chatJID string, body string) error

	Logout(ctx context.Context) error
}
