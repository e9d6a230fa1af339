package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"time"

	imapclient "github.com/emersion/go-imap/client"
)

const probeTimeout = 5 * time.Second

// ProbeIMAP dials ep and waits for the server greeting without logging in.
func ProbeIMAP(ctx context.Context, ep Endpoint) error {
	const op = "probe_imap"
	dialer := &net.Dialer{Timeout: probeTimeout}
	if dl, ok := ctx.Deadline(); ok {
		dialer.Deadline = dl
	}
	addr := net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port))
	tlsCfg := &tls.Config{ServerName: ep.Host, InsecureSkipVerify: ep.InsecureSkipVerify}

	var cli *imapclient.Client
	var err error
	if ep.TLS {
		cli, err = imapclient.DialWithDialerTLS(dialer, addr, tlsCfg)
	} else {
		cli, err = imapclient.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return newError(KindConnection, op, "", err)
	}
	if err := cli.Logout(); err != nil && !errors.Is(err, imapclient.ErrAlreadyLoggedOut) {
		_ = cli.Terminate()
	}
	return nil
}

// ProbeSMTP dials ep, negotiates STARTTLS when configured and says QUIT.
func ProbeSMTP(ctx context.Context, ep Endpoint) error {
	s := &Sender{DialTimeout: probeTimeout, CommandTimeout: probeTimeout}
	c, err := s.dialSMTP(ctx, ep)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Noop(); err != nil {
		return classifySMTP("probe_smtp", err)
	}
	_ = c.Quit()
	return nil
}
