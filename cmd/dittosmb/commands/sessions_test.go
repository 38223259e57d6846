package commands

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/pkg/api"
	apiauth "github.com/marmos91/dittosmb/pkg/api/auth"
	"github.com/marmos91/dittosmb/pkg/api/handlers"
)

type sessionStatus []handlers.SessionInfo

func (sessionStatus) Ready() bool                        { return true }
func (sessionStatus) ActiveConnections() int32           { return 1 }
func (s sessionStatus) Sessions() []handlers.SessionInfo { return s }

func TestFetchSessionsWithMintedToken(t *testing.T) {
	const secret = "0123456789abcdef0123456789abcdef"
	tokens, err := apiauth.NewTokenService(secret, time.Minute)
	require.NoError(t, err)
	srv := httptest.NewServer(api.NewRouter(sessionStatus{{ID: 7, Username: "alice", Domain: "CORP", Dialect: "0x311"}}, tokens))
	defer srv.Close()

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	_, err = fetchSessions(cmd, srv.URL+"/sessions", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	token, err := mintToken(secret, time.Minute)
	require.NoError(t, err)
	got, err := fetchSessions(cmd, srv.URL+"/sessions", token)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, `CORP\alice`, got.Rows()[0][2])

	_, err = mintToken("short", time.Minute)
	assert.ErrorIs(t, err, apiauth.ErrInvalidSecretLength)
}
