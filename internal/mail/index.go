package mail

import (
	"errors"
	"fmt"
	"strings"

	"github.com/emersion/go-imap"
)

const (
	fetchGmailLabels imap.FetchItem = "X-GM-LABELS"
	gmailCapability                 = "X-GM-EXT-1"
)

// ListMessages examines mailbox and fetches envelope metadata for every
// message in one batched UID FETCH. With ProfileGmail the same FETCH also asks
// for X-GM-LABELS.
func ListMessages(s *Session, mailbox string, profile Profile) ([]MessageSummary, error) {
	const op = "list_messages"
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchFlags, imap.FetchInternalDate, imap.FetchRFC822Size}
	if profile == ProfileGmail {
		ok, err := s.supports(gmailCapability)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newError(KindInvalid, op, mailbox, errors.New("server does not advertise Gmail extensions"))
		}
		items = append(items, fetchGmailLabels)
	}

	status, err := s.selectMailbox(op, mailbox, true)
	if err != nil {
		return nil, err
	}
	if status.Messages == 0 {
		return []MessageSummary{}, nil
	}

	// 0 encodes "*", so this is UID 1:* in a single round trip.
	seq := new(imap.SeqSet)
	seq.AddRange(1, 0)
	messages := make(chan *imap.Message, 64)
	done := make(chan error, 1)
	go func() {
		done <- s.cli.UidFetch(seq, items, messages)
	}()

	out := make([]MessageSummary, 0, status.Messages)
	for msg := range messages {
		if msg == nil {
			continue
		}
		sum := summaryFromMessage(mailbox, msg)
		if profile == ProfileGmail {
			sum.Labels = parseLabels(msg.Items[fetchGmailLabels])
		}
		out = append(out, sum)
	}
	if err := <-done; err != nil {
		return nil, classifyIMAP(op, mailbox, err, KindConnection)
	}
	return out, nil
}

func summaryFromMessage(mailbox string, msg *imap.Message) MessageSummary {
	sum := MessageSummary{
		ID:      msg.Uid,
		Ref:     EncodeMessageRef(mailbox, msg.Uid),
		Date:    msg.InternalDate,
		Flags:   append([]string{}, msg.Flags...),
		Seen:    hasFlag(msg.Flags, imap.SeenFlag),
		Deleted: hasFlag(msg.Flags, imap.DeletedFlag),
		Size:    msg.Size,
	}
	if msg.Envelope != nil {
		sum.From = envelopeFirstAddress(msg.Envelope.From)
		sum.Subject = msg.Envelope.Subject
		if !msg.Envelope.Date.IsZero() {
			sum.Date = msg.Envelope.Date
		}
	}
	return sum
}

func parseLabels(v interface{}) []string {
	switch value := v.(type) {
	case nil:
		return []string{}
	case []string:
		return append([]string{}, value...)
	case []interface{}:
		labels := make([]string, 0, len(value))
		for _, raw := range value {
			label := strings.TrimSpace(fmt.Sprintf("%v", raw))
			if label != "" {
				labels = append(labels, label)
			}
		}
		return labels
	case string:
		if value == "" {
			return []string{}
		}
		return []string{value}
	default:
		return []string{fmt.Sprintf("%v", value)}
	}
}

func envelopeFirstAddress(addrs []*imap.Address) string {
	if len(addrs) == 0 || addrs[0] == nil {
		return ""
	}
	if addrs[0].PersonalName != "" {
		return fmt.Sprintf("%s <%s>", addrs[0].PersonalName, addrs[0].Address())
	}
	return addrs[0].Address()
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}
