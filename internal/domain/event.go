package domain

import "time"

// EventKind tags the inbound event union.
type EventKind string

const (
	EventText     EventKind = "text"
	EventPollVote EventKind = "poll_vote"
)

// InboundEvent is one event received from the live chat session.
// RawSender is the platform identifier as the protocol delivered it; Phone is
// filled in by the identity resolver and stays empty until resolution runs.
type InboundEvent struct {
	Kind       EventKind
	MessageID  string
	RawSender  string // sender JID as delivered (user@server)
	ChatJID    string // owning chat JID
	Peer       string // remote JID from protocol-level message metadata
	Author     string // authorship field when distinct from RawSender (group messages)
	SenderName string // display/push name, may be empty
	Body       string // message text, or empty for poll votes
	Selected   []string
	Timestamp  time.Time

	Phone      string // canonical 10-15 digit number once resolved
	Unresolved bool   // true when every strategy failed and Phone is the raw id
}

// VoteClass is the RSVP classification of a poll vote.
type VoteClass string

const (
	VoteAccepted     VoteClass = "accepted"
	VoteDeclined     VoteClass = "declined"
	VoteUnclassified VoteClass = ""
)
