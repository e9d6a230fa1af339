package mail

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"go.uber.org/zap"
)

const (
	maxPartBytes    = 8 << 20
	maxMIMEDepth    = 16
	bodyContentType = "text/html"
)

var fullBodySection = &imap.BodySectionName{Peek: true}

// GetMessageBody examines mailbox, fetches the full RFC 822 source of uid and
// renders it into display-safe HTML.
func GetMessageBody(s *Session, mailbox string, uid uint32) (MessageBody, error) {
	const op = "get_message_body"
	if uid == 0 {
		return MessageBody{}, newError(KindInvalid, op, mailbox, errors.New("message id must be positive"))
	}
	if _, err := s.selectMailbox(op, mailbox, true); err != nil {
		return MessageBody{}, err
	}
	return fetchBody(s, op, mailbox, uid)
}

// fetchBody reads uid from whatever mailbox s currently has selected.
func fetchBody(s *Session, op, mailbox string, uid uint32) (MessageBody, error) {
	seq := new(imap.SeqSet)
	seq.AddNum(uid)
	items := []imap.FetchItem{imap.FetchUid, fullBodySection.FetchItem()}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.cli.UidFetch(seq, items, messages)
	}()

	var raw []byte
	var readErr error
	found := false
	for msg := range messages {
		if msg == nil || msg.Uid != uid {
			continue
		}
		found = true
		if lit := msg.GetBody(fullBodySection); lit != nil {
			raw, readErr = io.ReadAll(lit)
		}
	}
	if err := <-done; err != nil {
		return MessageBody{}, classifyIMAP(op, mailbox, err, KindNotFound)
	}
	if !found {
		return MessageBody{}, newError(KindNotFound, op, mailbox, errors.New("no message with that id"))
	}
	if raw == nil {
		return MessageBody{}, newError(KindDecode, op, mailbox, errors.New("server returned no body section"))
	}

	body := renderMessage(raw)
	body.Mailbox = mailbox
	body.ID = uid
	if readErr != nil {
		body.Degraded = true
	}
	if body.Degraded {
		s.log.Debug("message body degraded", zap.String("mailbox", mailbox), zap.Uint32("uid", uid))
	}
	return body, nil
}

type bodyParts struct {
	html        []string
	plain       []string
	attachments []AttachmentMeta
	degraded    bool
}

// renderMessage never fails: anything go-message cannot decode is passed
// through as escaped text and the result is flagged Degraded.
func renderMessage(raw []byte) MessageBody {
	out := MessageBody{ContentType: bodyContentType, Attachments: []AttachmentMeta{}}
	br := bufio.NewReader(bytes.NewReader(raw))
	h, err := textproto.ReadHeader(br)
	if err != nil {
		out.HTML = plainToHTML(string(raw))
		out.Degraded = true
		return out
	}

	parts := &bodyParts{}
	walkPart(message.Header{Header: h}, br, parts, 0)

	switch {
	case len(parts.html) > 0:
		out.HTML = sanitizeHTML(strings.Join(parts.html, "\n"))
	case len(parts.plain) > 0:
		out.HTML = plainToHTML(strings.Join(parts.plain, "\n\n"))
	default:
		out.HTML = NoReadableContent
	}
	out.Attachments = append(out.Attachments, parts.attachments...)
	out.Degraded = parts.degraded
	return out
}

// walkPart reads parts in their transfer encoding so a text part that fails
// to decode can still be shown as it was sent.
func walkPart(h message.Header, raw io.Reader, parts *bodyParts, depth int) {
	if depth > maxMIMEDepth {
		parts.degraded = true
		return
	}
	mediaType, params, err := h.ContentType()
	if err != nil || mediaType == "" {
		mediaType = "text/plain"
	}
	if strings.HasPrefix(mediaType, "multipart/") {
		mr := textproto.NewMultipartReader(raw, params["boundary"])
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				return
			}
			if err != nil {
				parts.degraded = true
				return
			}
			walkPart(message.Header{Header: p.Header}, p, parts, depth+1)
		}
	}

	disposition, _, _ := h.ContentDisposition()
	isText := mediaType == "text/html" || mediaType == "text/plain"
	if strings.EqualFold(disposition, "attachment") || !isText {
		parts.attachments = append(parts.attachments, attachmentMeta(h, raw, mediaType))
		return
	}

	encoded, err := io.ReadAll(io.LimitReader(raw, maxPartBytes))
	if err != nil {
		parts.degraded = true
	}
	text, ok := decodeText(h, encoded)
	if !ok {
		parts.degraded = true
	}
	if mediaType == "text/html" {
		parts.html = append(parts.html, text)
	} else {
		parts.plain = append(parts.plain, text)
	}
}

// decodeText undoes the transfer encoding and charset of a text part. An
// unknown charset keeps the transfer-decoded bytes; a broken encoding keeps
// the part exactly as sent.
func decodeText(h message.Header, encoded []byte) (string, bool) {
	e, err := message.New(h, bytes.NewReader(encoded))
	data, readErr := io.ReadAll(e.Body)
	if readErr != nil {
		return string(encoded), false
	}
	return string(data), err == nil
}

func attachmentMeta(h message.Header, raw io.Reader, mediaType string) AttachmentMeta {
	ah := gomail.AttachmentHeader{Header: h}
	name, _ := ah.Filename()
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	body := raw
	if e, err := message.New(h, raw); err == nil {
		body = e.Body
	}
	size, _ := io.Copy(io.Discard, io.LimitReader(body, maxPartBytes))
	return AttachmentMeta{Filename: name, ContentType: mediaType, Size: size}
}
