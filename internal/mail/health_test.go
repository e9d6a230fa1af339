package mail

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbes(t *testing.T) {
	f := startIMAP(t)
	smtpEP := startSMTP(t, &smtpBackend{})
	down := Endpoint{Host: "127.0.0.1", Port: closedPort(t)}
	ctx := context.Background()

	require.NoError(t, ProbeIMAP(ctx, f.info.IMAP))
	require.NoError(t, ProbeSMTP(ctx, smtpEP))
	require.NoError(t, ProbeSMTP(ctx, startSMTPStartTLS(t, &smtpBackend{})))

	assert.Equal(t, KindConnection, KindOf(ProbeIMAP(ctx, down)))
	assert.Equal(t, KindConnection, KindOf(ProbeSMTP(ctx, down)))
}
