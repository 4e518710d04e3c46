package models

import "time"

// MailMessage represents a message fetched from the mailbox
type MailMessage struct {
	UID       uint32
	MessageID string
	FromName  string
	FromAddr  string
	Subject   string
	Date      time.Time
	BodyText  string
	BodyHTML  string
}

// Body returns the best available body for matching: the plain text
// part if present, otherwise the raw HTML (callers normalize it).
func (m *MailMessage) Body() string {
	if m.BodyText != "" {
		return m.BodyText
	}
	return m.BodyHTML
}

// ConsumedMessage is a ledger entry for a verification email whose
// code has already been used, keyed by mailbox address and IMAP UID.
type ConsumedMessage struct {
	ID         int64     `db:"id"`
	Mailbox    string    `db:"mailbox"`
	UID        uint32    `db:"uid"`
	FromAddr   string    `db:"from_addr"`
	Kind       string    `db:"kind"` // e.g. "primary", "github"
	ConsumedAt time.Time `db:"consumed_at"`
}
