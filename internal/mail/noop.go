package mail

import (
	"context"
	"errors"
)

// NoopClient answers without touching the network. Handlers are wired with
// it when no mail account is configured, and tests embed it to override
// single methods.
type NoopClient struct{}

var errNoAccount = errors.New("no mail account configured")

func (NoopClient) ListMailboxes(ctx context.Context) ([]Mailbox, error) {
	return []Mailbox{}, nil
}

func (NoopClient) ListMessages(ctx context.Context, mailbox string, profile Profile) ([]MessageSummary, error) {
	return []MessageSummary{}, nil
}

func (NoopClient) ListMessagesOfGmail(ctx context.Context, mailbox string) ([]MessageSummary, error) {
	return []MessageSummary{}, nil
}

func (NoopClient) GetMessageBody(ctx context.Context, mailbox string, id uint32) (MessageBody, error) {
	return MessageBody{}, newError(KindNotFound, "get_message_body", mailbox, errors.New("message not found"))
}

func (NoopClient) DeleteMessage(ctx context.Context, mailbox string, id uint32) error {
	return newError(KindNotFound, "delete_message", mailbox, errors.New("message not found"))
}

func (NoopClient) SendMessage(ctx context.Context, msg OutgoingMessage) error {
	if len(msg.To) == 0 {
		return newError(KindInvalid, "send", "", errors.New("at least one recipient is required"))
	}
	return newError(KindConnection, "send", "", errNoAccount)
}

func (NoopClient) SelectMailbox(ctx context.Context, mailbox string) (SelectionState, error) {
	return SelectionState{}, newError(KindConnection, "select", mailbox, errNoAccount)
}

func (NoopClient) SelectedMailbox(ctx context.Context) (SelectionState, error) {
	return SelectionState{}, nil
}

func (NoopClient) SelectedMailboxMessageBody(ctx context.Context, id uint32) (MessageBody, error) {
	return MessageBody{}, newError(KindNoSelection, "selected_message_body", "", errors.New("no mailbox is selected"))
}

func (NoopClient) SelectedMailboxMessages(ctx context.Context, profile Profile) ([]MessageSummary, error) {
	return nil, newError(KindNoSelection, "selected_messages", "", errors.New("no mailbox is selected"))
}

func (NoopClient) CloseSelected() error { return nil }
