//go:build integration

package client_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/dittosmb/internal/adapter/smb/dialect"
	"github.com/marmos91/dittosmb/pkg/client"
)

// startSamba runs a stock Samba server so the client can be checked
// against an independent implementation.
func startSamba(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "dperson/samba:latest",
		ExposedPorts: []string{"445/tcp"},
		Cmd:          []string{"-u", "tester;tester", "-s", "public;/tmp;yes;no;yes"},
		WaitingFor:   wait.ForListeningPort("445/tcp").WithStartupTimeout(90 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start samba container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "445/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("%s:%d", host, port.Int())
}

func TestSambaInterop(t *testing.T) {
	addr := startSamba(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := (&client.Dialer{}).Dial(ctx, addr)
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, dialect.Supported(c.Negotiate.DialectRevision))
	assert.True(t, c.Negotiate.SecurityMode.SigningEnabled())

	require.NoError(t, c.SessionSetup(ctx, client.Credentials{User: "tester", Password: "tester"}))
	assert.NotZero(t, c.SessionID())
	require.NoError(t, c.Logoff(ctx))
}

func TestSambaWildcardProbe(t *testing.T) {
	addr := startSamba(t)

	r, err := (&client.Dialer{}).ProbeSMB1(context.Background(), addr, []string{"NT LM 0.12", "SMB 2.002", "SMB 2.???"})
	require.NoError(t, err)
	assert.True(t, r.Upgraded)
}
