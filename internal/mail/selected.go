package mail

import (
	"context"
	"errors"
	"sync"

	"github.com/emersion/go-imap"
	"go.uber.org/zap"
)

// ActiveSession keeps one IMAP session open across requests for clients that
// page through a single folder. It moves Disconnected -> Selected and back;
// any connection-class failure drops it to Disconnected.
//
// There is no idle timeout. A selection nobody closes holds its socket until
// the server hangs up or Close is called.
type ActiveSession struct {
	mu     sync.Mutex
	dialer *Dialer
	info   ServerInfo
	sess   *Session
}

func NewActiveSession(d *Dialer, info ServerInfo) *ActiveSession {
	return &ActiveSession{dialer: d, info: info}
}

// Select opens the session on first use and examines mailbox. A failed
// select leaves the session connected with nothing selected.
func (a *ActiveSession) Select(ctx context.Context, mailbox string) (SelectionState, error) {
	const op = "select"
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sess == nil {
		sess, err := a.dialer.Acquire(ctx, a.info)
		if err != nil {
			return SelectionState{}, err
		}
		a.sess = sess
	} else if err := ctx.Err(); err != nil {
		return SelectionState{}, newError(KindConnection, op, mailbox, err)
	}

	status, err := a.sess.selectMailbox(op, mailbox, true)
	if err != nil {
		return SelectionState{}, a.fail(err)
	}
	a.dialer.Log.Debug("mailbox selected", zap.String("mailbox", mailbox), zap.Uint32("messages", status.Messages))
	return a.stateLocked(status), nil
}

// State reports the current selection. A NOOP is issued first so the counts
// reflect mail that arrived since the last call.
func (a *ActiveSession) State(ctx context.Context) (SelectionState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil {
		return SelectionState{}, nil
	}
	if err := ctx.Err(); err != nil {
		return SelectionState{}, newError(KindConnection, "state", a.sess.mailbox, err)
	}
	if err := a.sess.cli.Noop(); err != nil {
		return SelectionState{}, a.fail(classifyIMAP("state", a.sess.mailbox, err, KindConnection))
	}
	return a.stateLocked(a.sess.cli.Mailbox()), nil
}

// MessageBody renders uid from the selected mailbox.
func (a *ActiveSession) MessageBody(ctx context.Context, uid uint32) (MessageBody, error) {
	const op = "selected_message_body"
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil || a.sess.mailbox == "" {
		return MessageBody{}, newError(KindNoSelection, op, "", errors.New("no mailbox is selected"))
	}
	if uid == 0 {
		return MessageBody{}, newError(KindInvalid, op, a.sess.mailbox, errors.New("message id must be positive"))
	}
	if err := ctx.Err(); err != nil {
		return MessageBody{}, newError(KindConnection, op, a.sess.mailbox, err)
	}
	body, err := fetchBody(a.sess, op, a.sess.mailbox, uid)
	if err != nil {
		return MessageBody{}, a.fail(err)
	}
	return body, nil
}

// Messages lists the selected mailbox over the held session.
func (a *ActiveSession) Messages(ctx context.Context, profile Profile) ([]MessageSummary, error) {
	const op = "selected_messages"
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess == nil || a.sess.mailbox == "" {
		return nil, newError(KindNoSelection, op, "", errors.New("no mailbox is selected"))
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(KindConnection, op, a.sess.mailbox, err)
	}
	out, err := ListMessages(a.sess, a.sess.mailbox, profile)
	if err != nil {
		return nil, a.fail(err)
	}
	return out, nil
}

// Close releases the held session. Closing a disconnected ActiveSession is a
// no-op.
func (a *ActiveSession) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess != nil {
		a.sess.Release()
		a.sess = nil
	}
	return nil
}

func (a *ActiveSession) fail(err error) error {
	if KindOf(err) == KindConnection && a.sess != nil {
		a.dialer.Log.Info("selected session dropped", zap.Error(err))
		a.sess.Release()
		a.sess = nil
	}
	return err
}

func (a *ActiveSession) stateLocked(status *imap.MailboxStatus) SelectionState {
	opened := a.sess.openedAt
	st := SelectionState{
		Connected: true,
		Mailbox:   a.sess.mailbox,
		ReadOnly:  a.sess.readOnly,
		OpenedAt:  &opened,
	}
	if status != nil && a.sess.mailbox != "" {
		st.Messages = status.Messages
		st.Recent = status.Recent
		st.UIDNext = status.UidNext
		st.UIDValidity = status.UidValidity
	}
	return st
}
