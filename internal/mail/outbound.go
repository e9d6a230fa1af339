package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type sendFunc func(ctx context.Context, user, pass, from string, rcpt []string, raw []byte) error

// Sender delivers composed messages over SMTP. It shares nothing with the
// IMAP side except the ServerInfo it is handed.
type Sender struct {
	DialTimeout    time.Duration
	CommandTimeout time.Duration
	Log            *zap.Logger
	now            func() time.Time
}

func NewSender(dialTimeout, commandTimeout time.Duration, log *zap.Logger) *Sender {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	if commandTimeout <= 0 {
		commandTimeout = defaultCommandTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{DialTimeout: dialTimeout, CommandTimeout: commandTimeout, Log: log, now: time.Now}
}

// Send composes msg and submits it. Success means the server accepted DATA.
func (s *Sender) Send(ctx context.Context, info ServerInfo, msg OutgoingMessage) error {
	const op = "send"
	user, pass := info.smtpCredentials()
	if strings.TrimSpace(msg.From) == "" {
		msg.From = user
	}
	if len(msg.To) == 0 {
		return newError(KindInvalid, op, "", errors.New("at least one recipient is required"))
	}
	raw, from, rcpt, err := composeMessage(msg, s.now())
	if err != nil {
		return newError(KindInvalid, op, "", err)
	}
	transmit := func(ctx context.Context, user, pass, from string, rcpt []string, raw []byte) error {
		return s.transmit(ctx, info.SMTP, user, pass, from, rcpt, raw)
	}
	if err := sendWithSenderFallback(ctx, user, pass, from, rcpt, raw, transmit); err != nil {
		s.Log.Warn("smtp send failed", zap.String("from", from), zap.Int("recipients", len(rcpt)), zap.Error(err))
		return classifySMTP(op, err)
	}
	s.Log.Info("smtp message accepted", zap.String("from", from), zap.Int("recipients", len(rcpt)))
	return nil
}

// sendWithSenderFallback retries once with the authenticated identity as the
// envelope sender when the server refuses the requested one by policy.
func sendWithSenderFallback(ctx context.Context, user, pass, from string, rcpt []string, raw []byte, send sendFunc) error {
	envelopeFrom := strings.TrimSpace(from)
	if envelopeFrom == "" {
		envelopeFrom = strings.TrimSpace(user)
	}
	err := send(ctx, user, pass, envelopeFrom, rcpt, raw)
	if err == nil {
		return nil
	}
	if !IsSMTPSenderPolicyError(err) {
		return err
	}
	authIdentity := strings.TrimSpace(user)
	if authIdentity != "" && !strings.EqualFold(envelopeFrom, authIdentity) {
		retryErr := send(ctx, user, pass, authIdentity, rcpt, raw)
		if retryErr == nil {
			return nil
		}
		if IsSMTPSenderPolicyError(retryErr) {
			return WrapSMTPSenderRejected(retryErr)
		}
		return retryErr
	}
	return WrapSMTPSenderRejected(err)
}

func (s *Sender) transmit(ctx context.Context, ep Endpoint, user, pass, from string, rcpt []string, raw []byte) error {
	const op = "send"
	if strings.TrimSpace(ep.Host) == "" || ep.Port <= 0 {
		return newError(KindInvalid, op, "", errors.New("smtp endpoint is not configured"))
	}
	c, err := s.dialSMTP(ctx, ep)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("AUTH"); ok && user != "" {
		if err := c.Auth(sasl.NewPlainClient("", user, pass)); err != nil {
			return classifySMTP(op, err)
		}
	}
	if err := c.Mail(from, nil); err != nil {
		return classifySMTP(op, err)
	}
	for _, r := range rcpt {
		if err := c.Rcpt(r, nil); err != nil {
			return classifySMTP(op, err)
		}
	}
	wc, err := c.Data()
	if err != nil {
		return classifySMTP(op, err)
	}
	if _, err := wc.Write(raw); err != nil {
		_ = wc.Close()
		return classifySMTP(op, err)
	}
	if err := wc.Close(); err != nil {
		return classifySMTP(op, err)
	}
	// DATA was accepted; a failed QUIT does not undo delivery.
	if err := c.Quit(); err != nil {
		s.Log.Debug("smtp quit failed", zap.Error(err))
	}
	return nil
}

// dialSMTP connects and, when configured, upgrades the connection to TLS.
// The connection deadline covers the whole transaction.
func (s *Sender) dialSMTP(ctx context.Context, ep Endpoint) (*smtp.Client, error) {
	const op = "smtp_connect"
	addr := net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port))
	tlsConfig := &tls.Config{ServerName: ep.Host, InsecureSkipVerify: ep.InsecureSkipVerify}
	dialer := &net.Dialer{Timeout: s.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, newError(KindConnection, op, "", err)
	}
	deadline := time.Now().Add(s.CommandTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	if ep.TLS {
		tc := tls.Client(conn, tlsConfig)
		if err := tc.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, newError(KindConnection, op, "", err)
		}
		conn = tc
	}
	if ep.StartTLS && !ep.TLS {
		// NewClientStartTLS closes the connection itself on failure.
		c, err := smtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			return nil, newError(KindConnection, op, "", err)
		}
		return c, nil
	}
	return smtp.NewClient(conn), nil
}

// composeMessage renders msg as a single-part RFC 5322 message and returns
// the bytes along with the envelope sender and recipients.
func composeMessage(msg OutgoingMessage, now time.Time) ([]byte, string, []string, error) {
	from, err := gomail.ParseAddress(strings.TrimSpace(msg.From))
	if err != nil {
		return nil, "", nil, errors.New("invalid sender address")
	}
	to, err := parseRecipients(msg.To)
	if err != nil {
		return nil, "", nil, err
	}
	if len(to) == 0 {
		return nil, "", nil, errors.New("at least one recipient is required")
	}
	cc, err := parseRecipients(msg.Cc)
	if err != nil {
		return nil, "", nil, err
	}

	var h gomail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*gomail.Address{from})
	h.SetAddressList("To", to)
	if len(cc) > 0 {
		h.SetAddressList("Cc", cc)
	}
	h.SetSubject(msg.Subject)
	h.SetMessageID(uuid.NewString() + "@" + addressDomain(from.Address))
	h.Set("MIME-Version", "1.0")
	contentType := "text/plain"
	if msg.HTML {
		contentType = "text/html"
	}
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, "", nil, err
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return nil, "", nil, err
	}
	if err := w.Close(); err != nil {
		return nil, "", nil, err
	}

	rcpt := make([]string, 0, len(to)+len(cc))
	for _, a := range append(to, cc...) {
		rcpt = append(rcpt, a.Address)
	}
	return buf.Bytes(), from.Address, rcpt, nil
}

func parseRecipients(in []string) ([]*gomail.Address, error) {
	out := make([]*gomail.Address, 0, len(in))
	for _, raw := range in {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		list, err := gomail.ParseAddressList(raw)
		if err != nil {
			return nil, errors.New("invalid recipient address " + strconv.Quote(raw))
		}
		out = append(out, list...)
	}
	return out, nil
}

func addressDomain(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
