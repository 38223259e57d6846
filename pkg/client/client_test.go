package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/adapter/smb/dialect"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	smbadapter "github.com/marmos91/dittosmb/pkg/adapter/smb"
	"github.com/marmos91/dittosmb/pkg/client"
)

func serve(t *testing.T) string {
	t.Helper()

	a, err := smbadapter.New(smbadapter.Config{
		BindAddress: "127.0.0.1",
		ServerGUID:  "0b8f4a52-3c0e-4c1e-9d45-6f2a7b1e8c90",
		Auth:        smbadapter.AuthConfig{Guest: true},
	})
	require.NoError(t, err)
	a.BaseAdapter.Config.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = a.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return a.GetListenerAddr()
}

func TestDialNegotiatesHighestDialect(t *testing.T) {
	addr := serve(t)

	c, err := (&client.Dialer{}).Dial(context.Background(), addr)
	require.NoError(t, err)
	defer c.Close()

	r := c.Negotiate
	assert.Equal(t, dialect.SMB311, r.DialectRevision)
	assert.Equal(t, uuid.MustParse("0b8f4a52-3c0e-4c1e-9d45-6f2a7b1e8c90"), r.ServerGUID)
	assert.True(t, r.SecurityMode.SigningEnabled())
	assert.False(t, r.SecurityMode.SigningRequired())
	assert.WithinDuration(t, time.Now(), r.SystemTime, time.Minute)
	require.Len(t, r.Contexts, 2)
	assert.Equal(t, types.NegCtxPreauthIntegrity, r.Contexts[0].Type)
	assert.Equal(t, types.NegCtxEncryption, r.Contexts[1].Type)
}

func TestDialLegacyDialects(t *testing.T) {
	addr := serve(t)

	for _, v := range []dialect.Version{dialect.SMB202, dialect.SMB210, dialect.SMB300, dialect.SMB302} {
		t.Run(v.String(), func(t *testing.T) {
			c, err := (&client.Dialer{Dialects: []dialect.Version{v}}).Dial(context.Background(), addr)
			require.NoError(t, err)
			defer c.Close()
			assert.Equal(t, v, c.Negotiate.DialectRevision)
			assert.Empty(t, c.Negotiate.Contexts)
		})
	}
}

func TestGuestSession(t *testing.T) {
	addr := serve(t)
	ctx := context.Background()

	c, err := (&client.Dialer{}).Dial(ctx, addr)
	require.NoError(t, err)
	defer c.Close()

	assert.ErrorIs(t, c.Logoff(ctx), client.ErrNoSession)

	require.NoError(t, c.SessionSetup(ctx, client.Credentials{User: "bob", Password: "pw", Domain: "WORKGROUP"}))
	assert.True(t, c.Guest())
	id := c.SessionID()
	assert.NotZero(t, id)

	require.NoError(t, c.Echo(ctx))
	require.NoError(t, c.Logoff(ctx))
	assert.Zero(t, c.SessionID())
}

func TestSessionSetupTwiceRejected(t *testing.T) {
	addr := serve(t)
	ctx := context.Background()

	c, err := (&client.Dialer{}).Dial(ctx, addr)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SessionSetup(ctx, client.Credentials{}))

	err = c.SessionSetup(ctx, client.Credentials{})
	var statusErr *client.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, types.StatusRequestNotAccepted, statusErr.Status)
}

func TestProbeSMB1(t *testing.T) {
	addr := serve(t)
	ctx := context.Background()

	r, err := (&client.Dialer{}).ProbeSMB1(ctx, addr, []string{"NT LM 0.12", "SMB 2.???"})
	require.NoError(t, err)
	assert.True(t, r.Upgraded)
	assert.Equal(t, dialect.Wildcard, r.Revision)

	r, err = (&client.Dialer{}).ProbeSMB1(ctx, addr, []string{"NT LM 0.12", "SMB 2.002"})
	require.NoError(t, err)
	assert.False(t, r.Upgraded)
	assert.Equal(t, uint16(0), r.DialectIndex)
	require.NotNil(t, r.SMB1)
}

func TestDialRefused(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := (&client.Dialer{}).Dial(ctx, "127.0.0.1:1")
	assert.Error(t, err)
}
