package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	imapserver "github.com/emersion/go-imap/server"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testUser = "username"
	testPass = "password"
)

type imapFixture struct {
	be   *memory.Backend
	info ServerInfo
}

// startIMAP serves the go-imap memory backend on a loopback port. The backend
// ships with user "username"/"password" and an INBOX holding UID 6.
func startIMAP(t *testing.T) *imapFixture {
	t.Helper()
	be := memory.New()
	srv := imapserver.New(be)
	srv.AllowInsecureAuth = true
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })

	port := l.Addr().(*net.TCPAddr).Port
	return &imapFixture{
		be: be,
		info: ServerInfo{
			IMAP:     Endpoint{Host: "127.0.0.1", Port: port},
			Username: testUser,
			Secret:   testPass,
		},
	}
}

// addMailbox creates name and appends one message per raw body. UIDs start
// at 1 in a fresh mailbox.
func (f *imapFixture) addMailbox(t *testing.T, name string, raws ...string) {
	t.Helper()
	u, err := f.be.Login(nil, testUser, testPass)
	require.NoError(t, err)
	require.NoError(t, u.CreateMailbox(name))
	mbox, err := u.GetMailbox(name)
	require.NoError(t, err)
	for _, raw := range raws {
		require.NoError(t, mbox.CreateMessage([]string{}, time.Now(), bytes.NewBufferString(crlf(raw))))
	}
}

func crlf(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\n", "\r\n")
}

func testDialer() *Dialer {
	return NewDialer(2*time.Second, 5*time.Second, zap.NewNop())
}

func acquire(t *testing.T, f *imapFixture) *Session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s, err := testDialer().Acquire(ctx, f.info)
	require.NoError(t, err)
	t.Cleanup(s.Release)
	t.Cleanup(cancel)
	return s
}

// closedPort returns a loopback port that nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func simpleMessage(subject, body string) string {
	return "From: Alice <alice@example.com>\n" +
		"To: bob@example.com\n" +
		"Subject: " + subject + "\n" +
		"Date: Wed, 11 May 2016 14:31:59 +0000\n" +
		"Content-Type: text/plain; charset=utf-8\n" +
		"\n" +
		body + "\n"
}

type capturedMail struct {
	From string
	To   []string
	Data []byte
}

// smtpBackend records deliveries. With password set, sessions advertise
// AUTH PLAIN and refuse any other secret with 535.
type smtpBackend struct {
	mu         sync.Mutex
	delivered  []capturedMail
	senders    []string
	authed     []string
	rejectRcpt string
	onlySender string
	password   string
}

func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	s := &smtpSession{be: b}
	if b.password != "" {
		return &authSMTPSession{smtpSession: s}, nil
	}
	return s, nil
}

func (b *smtpBackend) authenticated() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.authed...)
}

func (b *smtpBackend) messages() []capturedMail {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]capturedMail{}, b.delivered...)
}

func (b *smtpBackend) envelopeSenders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.senders...)
}

type smtpSession struct {
	be   *smtpBackend
	from string
	to   []string
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.be.mu.Lock()
	s.be.senders = append(s.be.senders, from)
	s.be.mu.Unlock()
	if s.be.onlySender != "" && !strings.EqualFold(from, s.be.onlySender) {
		return &smtp.SMTPError{Code: 553, EnhancedCode: smtp.EnhancedCode{5, 7, 1}, Message: "Sender address rejected: not owned by user"}
	}
	s.from = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	if s.be.rejectRcpt != "" && strings.EqualFold(to, s.be.rejectRcpt) {
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "mailbox unavailable"}
	}
	s.to = append(s.to, to)
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if s.from == "" {
		return errors.New("no sender")
	}
	s.be.mu.Lock()
	s.be.delivered = append(s.be.delivered, capturedMail{From: s.from, To: s.to, Data: data})
	s.be.mu.Unlock()
	return nil
}

func (s *smtpSession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *smtpSession) Logout() error { return nil }

type authSMTPSession struct {
	*smtpSession
}

func (s *authSMTPSession) AuthMechanisms() []string { return []string{sasl.Plain} }

func (s *authSMTPSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if password != s.be.password {
			return &smtp.SMTPError{Code: 535, EnhancedCode: smtp.EnhancedCode{5, 7, 8}, Message: "authentication credentials invalid"}
		}
		s.be.mu.Lock()
		s.be.authed = append(s.be.authed, username)
		s.be.mu.Unlock()
		return nil
	}), nil
}

func startSMTP(t *testing.T, be *smtpBackend) Endpoint {
	t.Helper()
	return serveSMTP(t, be, nil)
}

// startSMTPStartTLS serves be in plain text with STARTTLS offered, using the
// self-signed certificate from an httptest TLS server.
func startSMTPStartTLS(t *testing.T, be *smtpBackend) Endpoint {
	t.Helper()
	ts := httptest.NewTLSServer(http.NotFoundHandler())
	cert := ts.TLS.Certificates[0]
	ts.Close()
	ep := serveSMTP(t, be, &tls.Config{Certificates: []tls.Certificate{cert}})
	ep.StartTLS = true
	ep.InsecureSkipVerify = true
	return ep
}

func serveSMTP(t *testing.T, be *smtpBackend, tlsConfig *tls.Config) Endpoint {
	t.Helper()
	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = tlsConfig == nil
	srv.TLSConfig = tlsConfig
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })
	return Endpoint{Host: "127.0.0.1", Port: l.Addr().(*net.TCPAddr).Port}
}
