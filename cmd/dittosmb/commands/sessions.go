package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/cli/output"
	apiauth "github.com/marmos91/dittosmb/pkg/api/auth"
	"github.com/marmos91/dittosmb/pkg/api/handlers"
	"github.com/marmos91/dittosmb/pkg/config"
)

var (
	sessionsServer string
	sessionsOutput string
	sessionsToken  string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List the sessions of a running server",
	Long: `Query the HTTP API of a running dittosmb server and list its established
sessions.

The API address defaults to the api section of the configuration. When
api.jwt_secret is configured the server wants a bearer token: pass one with
--token, or let the command mint a short-lived one from the local secret.

Examples:
  dittosmb sessions
  dittosmb sessions --server 10.0.0.5:9090 --token "$TOKEN" -o json`,
	Args: cobra.NoArgs,
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsServer, "server", "", "API address host:port (default from config)")
	sessionsCmd.Flags().StringVarP(&sessionsOutput, "output", "o", "table", "Output format (table|json|yaml)")
	sessionsCmd.Flags().StringVar(&sessionsToken, "token", "", "API bearer token (default: minted from api.jwt_secret)")
}

type sessionList []handlers.SessionInfo

func (s sessionList) Headers() []string {
	return []string{"ID", "Client", "User", "Mechanism", "Dialect", "Signed", "Created"}
}

func (s sessionList) Rows() [][]string {
	rows := make([][]string, 0, len(s))
	for _, info := range s {
		user := info.Username
		switch {
		case info.Guest:
			user = "(guest)"
		case info.Domain != "":
			user = info.Domain + `\` + info.Username
		}
		rows = append(rows, []string{
			fmt.Sprintf("0x%x", info.ID),
			info.ClientAddr,
			user,
			info.Mechanism,
			info.Dialect,
			yesNo(info.Signed),
			formatTime(info.CreatedAt),
		})
	}
	return rows
}

func runSessions(cmd *cobra.Command, args []string) error {
	printer, err := newPrinter(sessionsOutput)
	if err != nil {
		return err
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	addr := sessionsServer
	if addr == "" {
		host := cfg.API.BindAddress
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = "localhost"
		}
		addr = net.JoinHostPort(host, strconv.Itoa(cfg.API.Port))
	}

	token := sessionsToken
	if token == "" && cfg.API.JWTSecret != "" {
		if token, err = mintToken(cfg.API.JWTSecret, cfg.API.TokenTTL); err != nil {
			return err
		}
	}

	sessions, err := fetchSessions(cmd, "http://"+addr+"/sessions", token)
	if err != nil {
		return err
	}
	if len(sessions) == 0 && printer.Format() == output.FormatTable {
		printer.Printf("No active sessions\n")
		return nil
	}
	return printer.Print(sessions)
}

func mintToken(secret string, ttl time.Duration) (string, error) {
	tokens, err := apiauth.NewTokenService(secret, ttl)
	if err != nil {
		return "", fmt.Errorf("api.jwt_secret: %w", err)
	}
	token, _, err := tokens.Issue("dittosmb-cli", apiauth.ScopeSessionsRead)
	return token, err
}

func fetchSessions(cmd *cobra.Command, url, token string) (sessionList, error) {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot reach the API at %s (is the server running?): %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var body struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(msg, &body) == nil && body.Error != "" {
			msg = []byte(body.Error)
		}
		return nil, fmt.Errorf("API returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var body struct {
		Status string      `json:"status"`
		Data   sessionList `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid API response: %w", err)
	}
	return body.Data, nil
}
