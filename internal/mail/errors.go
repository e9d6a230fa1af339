package mail

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-smtp"
)

type Kind string

const (
	KindConnection  Kind = "connection"
	KindAuth        Kind = "auth"
	KindNotFound    Kind = "not_found"
	KindDecode      Kind = "decode"
	KindSend        Kind = "send"
	KindPurge       Kind = "purge"
	KindNoSelection Kind = "no_selection"
	KindInvalid     Kind = "invalid"
)

// Error is the only failure type returned by the mail layer.
type Error struct {
	Kind    Kind
	Op      string
	Mailbox string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Mailbox != "" {
		fmt.Fprintf(&b, " (mailbox %q)", e.Mailbox)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the per-kind sentinels below, so errors.Is(err, ErrNotFound)
// holds for any *Error of kind KindNotFound.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrConnection  = &Error{Kind: KindConnection}
	ErrAuth        = &Error{Kind: KindAuth}
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrDecode      = &Error{Kind: KindDecode}
	ErrSend        = &Error{Kind: KindSend}
	ErrPurge       = &Error{Kind: KindPurge}
	ErrNoSelection = &Error{Kind: KindNoSelection}
	ErrInvalid     = &Error{Kind: KindInvalid}
)

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// did not come from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, op, mailbox string, err error) *Error {
	return &Error{Kind: kind, Op: op, Mailbox: mailbox, Err: err}
}

// classifyIMAP turns an error returned by the IMAP client into an *Error.
// Transport failures become KindConnection; anything else is a tagged NO/BAD
// reply from the server and takes statusKind.
func classifyIMAP(op, mailbox string, err error, statusKind Kind) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return err
	}
	switch {
	case errors.Is(err, imapclient.ErrNoMailboxSelected):
		return newError(KindNoSelection, op, mailbox, err)
	case isTransportError(err):
		return newError(KindConnection, op, mailbox, err)
	}
	return newError(statusKind, op, mailbox, err)
}

func isTransportError(err error) bool {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return true
	case errors.Is(err, imapclient.ErrNotLoggedIn), errors.Is(err, imapclient.ErrAlreadyLoggedOut):
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset")
}

// classifySMTP maps go-smtp failures. Reply codes 530/534/535 during any
// phase mean the credentials were refused.
func classifySMTP(op string, err error) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return err
	}
	var se *smtp.SMTPError
	if errors.As(err, &se) {
		switch se.Code {
		case 530, 534, 535:
			return newError(KindAuth, op, "", err)
		}
		return newError(KindSend, op, "", err)
	}
	if isTransportError(err) {
		return newError(KindConnection, op, "", err)
	}
	return newError(KindSend, op, "", err)
}

var ErrSMTPSenderRejected = errors.New("smtp sender rejected by policy")

func WrapSMTPSenderRejected(err error) error {
	if err == nil {
		return newError(KindSend, "send", "", ErrSMTPSenderRejected)
	}
	return newError(KindSend, "send", "", fmt.Errorf("%w: %v", ErrSMTPSenderRejected, err))
}

func IsSMTPSenderPolicyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	hints := []string{
		"sender must match authenticated user",
		"sender address rejected",
		"not owned by user",
		"sender login mismatch",
		"not authorized to send as",
		"must be authenticated as",
		"sender rejected",
	}
	for _, hint := range hints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
