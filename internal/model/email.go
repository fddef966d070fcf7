package model

import (
	"fmt"
	"time"
)

// TopicMailParsed is the fan-out topic carrying every parsed inbox message.
const TopicMailParsed = "mail:parsed"

// Email is one message fetched from the inbox during a poll cycle.
type Email struct {
	// SeqNum is the IMAP sequence number. It is only meaningful within the
	// session that fetched the message.
	SeqNum uint32 `json:"sequenceNumber"`

	// MessageID is the Message-ID header without angle brackets, or a
	// value synthesized from SeqNum when the header is absent.
	MessageID string `json:"messageId"`

	// Synthesized is true when MessageID was derived from SeqNum and must
	// not be trusted for deduplication.
	Synthesized bool `json:"synthesized"`

	From    string    `json:"from"`
	Subject string    `json:"subject"`
	Text    string    `json:"text"`
	Date    time.Time `json:"date"`
}

// SynthesizedID returns the fallback identifier for a message without a
// Message-ID header.
func SynthesizedID(seqNum uint32) string {
	return fmt.Sprintf("seqno-%d", seqNum)
}

// ParsedMessage is the parser's view of a message as published on the bus.
type ParsedMessage struct {
	Subject   string    `json:"subject"`
	From      string    `json:"from"`
	Date      time.Time `json:"date"`
	Text      string    `json:"text"`
	MessageID string    `json:"messageId"`
}

// MailEvent is the payload published on TopicMailParsed.
type MailEvent struct {
	SequenceNumber uint32        `json:"sequenceNumber"`
	ParsedMessage  ParsedMessage `json:"parsedMessage"`

	// MessageID is nil when the message carried no Message-ID header.
	MessageID *string `json:"messageId"`
}

// NewMailEvent builds the bus payload for a parsed email.
func NewMailEvent(e Email) MailEvent {
	ev := MailEvent{
		SequenceNumber: e.SeqNum,
		ParsedMessage: ParsedMessage{
			Subject:   e.Subject,
			From:      e.From,
			Date:      e.Date,
			Text:      e.Text,
			MessageID: e.MessageID,
		},
	}
	if !e.Synthesized && e.MessageID != "" {
		id := e.MessageID
		ev.MessageID = &id
	}
	return ev
}

// ID returns the identifier classifiers key their history on, and whether
// it is stable across fetches.
func (ev MailEvent) ID() (id string, stable bool) {
	if ev.MessageID != nil && *ev.MessageID != "" {
		return *ev.MessageID, true
	}
	return SynthesizedID(ev.SequenceNumber), false
}
