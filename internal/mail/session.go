package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"go.uber.org/zap"
)

const (
	defaultDialTimeout    = 10 * time.Second
	defaultCommandTimeout = 60 * time.Second
)

// Dialer opens one authenticated IMAP connection per Acquire call. Sessions
// are never pooled, so every logical operation pays the full handshake.
type Dialer struct {
	DialTimeout    time.Duration
	CommandTimeout time.Duration
	Log            *zap.Logger
}

func NewDialer(dialTimeout, commandTimeout time.Duration, log *zap.Logger) *Dialer {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	if commandTimeout <= 0 {
		commandTimeout = defaultCommandTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dialer{DialTimeout: dialTimeout, CommandTimeout: commandTimeout, Log: log}
}

// Session is a live IMAP connection. It is owned by whoever acquired it and
// must be released on every exit path.
type Session struct {
	cli      *imapclient.Client
	info     ServerInfo
	log      *zap.Logger
	mailbox  string
	readOnly bool
	openedAt time.Time
	released bool
}

func (d *Dialer) Acquire(ctx context.Context, info ServerInfo) (*Session, error) {
	const op = "acquire"
	if err := ctx.Err(); err != nil {
		return nil, newError(KindConnection, op, "", err)
	}
	if strings.TrimSpace(info.Username) == "" || info.Secret == "" {
		return nil, newError(KindAuth, op, "", errors.New("missing mail credentials"))
	}
	ep := info.IMAP
	if strings.TrimSpace(ep.Host) == "" || ep.Port <= 0 {
		return nil, newError(KindInvalid, op, "", errors.New("imap endpoint is not configured"))
	}

	dialer := &net.Dialer{Timeout: d.DialTimeout}
	if dl, ok := ctx.Deadline(); ok {
		dialer.Deadline = dl
	}
	addr := net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port))
	tlsConfig := &tls.Config{ServerName: ep.Host, InsecureSkipVerify: ep.InsecureSkipVerify}

	var cli *imapclient.Client
	var err error
	if ep.TLS {
		cli, err = imapclient.DialWithDialerTLS(dialer, addr, tlsConfig)
	} else {
		cli, err = imapclient.DialWithDialer(dialer, addr)
		if err == nil && ep.StartTLS {
			if err = cli.StartTLS(tlsConfig); err != nil {
				_ = cli.Terminate()
			}
		}
	}
	if err != nil {
		d.Log.Warn("imap dial failed", zap.String("addr", addr), zap.Error(err))
		return nil, newError(KindConnection, op, "", err)
	}
	cli.Timeout = d.CommandTimeout

	if err := cli.Login(info.Username, info.Secret); err != nil {
		_ = cli.Logout()
		d.Log.Warn("imap login failed", zap.String("addr", addr), zap.String("user", info.Username), zap.Error(err))
		return nil, classifyIMAP(op, "", err, KindAuth)
	}
	d.Log.Debug("imap session opened", zap.String("addr", addr), zap.String("user", info.Username))
	return &Session{cli: cli, info: info, log: d.Log, openedAt: time.Now().UTC()}, nil
}

// Release logs out and closes the connection. It is safe to call more than
// once.
func (s *Session) Release() {
	if s == nil || s.released {
		return
	}
	s.released = true
	if err := s.cli.Logout(); err != nil && !errors.Is(err, imapclient.ErrAlreadyLoggedOut) {
		_ = s.cli.Terminate()
		s.log.Debug("imap logout failed", zap.Error(err))
	}
	s.mailbox = ""
}

// selectMailbox issues SELECT or EXAMINE. A NO reply means the mailbox does
// not exist on the server.
func (s *Session) selectMailbox(op, name string, readOnly bool) (*imap.MailboxStatus, error) {
	if strings.TrimSpace(name) == "" {
		return nil, newError(KindInvalid, op, "", errors.New("mailbox name is required"))
	}
	if s.released {
		return nil, newError(KindConnection, op, name, errors.New("session already released"))
	}
	status, err := s.cli.Select(name, readOnly)
	if err != nil {
		s.mailbox = ""
		return nil, classifyIMAP(op, name, err, KindNotFound)
	}
	s.mailbox = name
	s.readOnly = readOnly
	return status, nil
}

func (s *Session) supports(capability string) (bool, error) {
	ok, err := s.cli.Support(capability)
	if err != nil {
		return false, classifyIMAP("capability", "", err, KindConnection)
	}
	return ok, nil
}
