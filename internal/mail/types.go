package mail

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Endpoint struct {
	Host               string
	Port               int
	TLS                bool
	StartTLS           bool
	InsecureSkipVerify bool
}

// ServerInfo is the read-only account configuration a worker operates with.
// SMTPUsername and SMTPSecret override Username and Secret for the outbound
// side when set.
type ServerInfo struct {
	IMAP         Endpoint
	SMTP         Endpoint
	Username     string
	Secret       string
	SMTPUsername string
	SMTPSecret   string
}

func (s ServerInfo) smtpCredentials() (string, string) {
	user, secret := s.Username, s.Secret
	if strings.TrimSpace(s.SMTPUsername) != "" {
		user = s.SMTPUsername
	}
	if s.SMTPSecret != "" {
		secret = s.SMTPSecret
	}
	return user, secret
}

type Profile string

const (
	ProfileStandard Profile = "standard"
	ProfileGmail    Profile = "gmail"
)

func ParseProfile(v string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "standard", "imap":
		return ProfileStandard, nil
	case "gmail":
		return ProfileGmail, nil
	default:
		return "", fmt.Errorf("unknown mail profile %q", v)
	}
}

type SpecialUse string

const (
	SpecialUseNone      SpecialUse = ""
	SpecialUseAll       SpecialUse = "all"
	SpecialUseArchive   SpecialUse = "archive"
	SpecialUseDrafts    SpecialUse = "drafts"
	SpecialUseFlagged   SpecialUse = "flagged"
	SpecialUseJunk      SpecialUse = "junk"
	SpecialUseSent      SpecialUse = "sent"
	SpecialUseTrash     SpecialUse = "trash"
	SpecialUseImportant SpecialUse = "important"
)

type Mailbox struct {
	Name        string     `json:"name"`
	Delimiter   string     `json:"delimiter"`
	DisplayName string     `json:"display_name"`
	Attributes  []string   `json:"attributes"`
	SpecialUse  SpecialUse `json:"special_use,omitempty"`
	Selectable  bool       `json:"selectable"`
}

type MessageSummary struct {
	ID      uint32    `json:"id"`
	Ref     string    `json:"ref"`
	From    string    `json:"from"`
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
	Flags   []string  `json:"flags"`
	Seen    bool      `json:"seen"`
	Deleted bool      `json:"deleted"`
	Size    uint32    `json:"size"`
	Labels  []string  `json:"labels"`
}

type AttachmentMeta struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// MessageBody is the display-safe rendering of one message. Degraded is set
// when some part could not be decoded and raw content was used instead.
type MessageBody struct {
	Mailbox     string           `json:"mailbox"`
	ID          uint32           `json:"id"`
	ContentType string           `json:"content_type"`
	HTML        string           `json:"html"`
	Attachments []AttachmentMeta `json:"attachments"`
	Degraded    bool             `json:"degraded"`
}

type OutgoingMessage struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	HTML    bool     `json:"html,omitempty"`
}

type SelectionState struct {
	Connected   bool       `json:"connected"`
	Mailbox     string     `json:"mailbox,omitempty"`
	ReadOnly    bool       `json:"read_only"`
	Messages    uint32     `json:"messages"`
	Recent      uint32     `json:"recent"`
	UIDNext     uint32     `json:"uid_next,omitempty"`
	UIDValidity uint32     `json:"uid_validity,omitempty"`
	OpenedAt    *time.Time `json:"opened_at,omitempty"`
}

// Client is the set of mail operations the HTTP layer consumes. Every method
// returns either data or a *Error carrying a Kind.
type Client interface {
	ListMailboxes(ctx context.Context) ([]Mailbox, error)
	ListMessages(ctx context.Context, mailbox string, profile Profile) ([]MessageSummary, error)
	ListMessagesOfGmail(ctx context.Context, mailbox string) ([]MessageSummary, error)
	GetMessageBody(ctx context.Context, mailbox string, id uint32) (MessageBody, error)
	DeleteMessage(ctx context.Context, mailbox string, id uint32) error
	SendMessage(ctx context.Context, msg OutgoingMessage) error
	SelectMailbox(ctx context.Context, mailbox string) (SelectionState, error)
	SelectedMailbox(ctx context.Context) (SelectionState, error)
	SelectedMailboxMessageBody(ctx context.Context, id uint32) (MessageBody, error)
	SelectedMailboxMessages(ctx context.Context, profile Profile) ([]MessageSummary, error)
	CloseSelected() error
}
