package mail

import (
	"context"

	"go.uber.org/zap"
)

// Worker is the Client backed by real IMAP and SMTP servers. Every call
// except the selected-mailbox ones acquires a fresh session and releases it
// before returning.
type Worker struct {
	info    ServerInfo
	profile Profile
	dialer  *Dialer
	sender  *Sender
	active  *ActiveSession
	log     *zap.Logger
}

// NewWorker wires a worker for one account. profile is the default used by
// ListMessages when the caller passes an empty one.
func NewWorker(info ServerInfo, profile Profile, dialer *Dialer, sender *Sender, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	if profile == "" {
		profile = ProfileStandard
	}
	return &Worker{
		info:    info,
		profile: profile,
		dialer:  dialer,
		sender:  sender,
		active:  NewActiveSession(dialer, info),
		log:     log,
	}
}

func (w *Worker) withSession(ctx context.Context, op string, fn func(*Session) error) error {
	sess, err := w.dialer.Acquire(ctx, w.info)
	if err != nil {
		w.logFailure(op, err)
		return err
	}
	defer sess.Release()
	if err := fn(sess); err != nil {
		w.logFailure(op, err)
		return err
	}
	return nil
}

func (w *Worker) logFailure(op string, err error) {
	fields := []zap.Field{zap.String("op", op), zap.String("kind", string(KindOf(err))), zap.Error(err)}
	switch KindOf(err) {
	case KindNotFound, KindInvalid, KindNoSelection:
		w.log.Debug("mail operation rejected", fields...)
	default:
		w.log.Warn("mail operation failed", fields...)
	}
}

func (w *Worker) ListMailboxes(ctx context.Context) ([]Mailbox, error) {
	var out []Mailbox
	err := w.withSession(ctx, "list_mailboxes", func(s *Session) error {
		var err error
		out, err = ListMailboxes(s)
		return err
	})
	return out, err
}

func (w *Worker) ListMessages(ctx context.Context, mailbox string, profile Profile) ([]MessageSummary, error) {
	if profile == "" {
		profile = w.profile
	}
	var out []MessageSummary
	err := w.withSession(ctx, "list_messages", func(s *Session) error {
		var err error
		out, err = ListMessages(s, mailbox, profile)
		return err
	})
	return out, err
}

func (w *Worker) ListMessagesOfGmail(ctx context.Context, mailbox string) ([]MessageSummary, error) {
	return w.ListMessages(ctx, mailbox, ProfileGmail)
}

func (w *Worker) GetMessageBody(ctx context.Context, mailbox string, id uint32) (MessageBody, error) {
	var out MessageBody
	err := w.withSession(ctx, "get_message_body", func(s *Session) error {
		var err error
		out, err = GetMessageBody(s, mailbox, id)
		return err
	})
	return out, err
}

// DeleteMessage runs detached from ctx cancellation so a client hanging up
// cannot split the flag and expunge steps.
func (w *Worker) DeleteMessage(ctx context.Context, mailbox string, id uint32) error {
	ctx = context.WithoutCancel(ctx)
	err := w.withSession(ctx, "delete_message", func(s *Session) error {
		return DeleteMessage(s, mailbox, id)
	})
	if err == nil {
		w.log.Info("message deleted", zap.String("mailbox", mailbox), zap.Uint32("uid", id))
	}
	return err
}

func (w *Worker) SendMessage(ctx context.Context, msg OutgoingMessage) error {
	return w.sender.Send(context.WithoutCancel(ctx), w.info, msg)
}

func (w *Worker) SelectMailbox(ctx context.Context, mailbox string) (SelectionState, error) {
	st, err := w.active.Select(ctx, mailbox)
	if err != nil {
		w.logFailure("select", err)
	}
	return st, err
}

func (w *Worker) SelectedMailbox(ctx context.Context) (SelectionState, error) {
	return w.active.State(ctx)
}

func (w *Worker) SelectedMailboxMessageBody(ctx context.Context, id uint32) (MessageBody, error) {
	body, err := w.active.MessageBody(ctx, id)
	if err != nil {
		w.logFailure("selected_message_body", err)
	}
	return body, err
}

func (w *Worker) SelectedMailboxMessages(ctx context.Context, profile Profile) ([]MessageSummary, error) {
	if profile == "" {
		profile = w.profile
	}
	out, err := w.active.Messages(ctx, profile)
	if err != nil {
		w.logFailure("selected_messages", err)
	}
	return out, err
}

func (w *Worker) CloseSelected() error {
	return w.active.Close()
}

var _ Client = (*Worker)(nil)
