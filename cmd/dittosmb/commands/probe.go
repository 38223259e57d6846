package commands

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/cli/output"
	"github.com/marmos91/dittosmb/internal/cli/prompt"
	"github.com/marmos91/dittosmb/pkg/client"
)

var (
	probeDialects []string
	probeSMB1     []string
	probeUser     string
	probeDomain   string
	probeAskPass  bool
	probeGuest    bool
	probeTimeout  time.Duration
	probeOutput   string
)

var probeCmd = &cobra.Command{
	Use:   "probe <host[:port]>",
	Short: "Negotiate with an SMB server and report the result",
	Long: `Connect to an SMB server, negotiate, and print what it selected.

With --smb1 a single SMB1 NEGOTIATE offering the given dialect strings is
sent instead, which shows whether the server upgrades to SMB2. With --user
or --guest a session is set up over NTLM after negotiation.

Examples:
  # Negotiate every SMB2/3 dialect
  dittosmb probe fileserver

  # Offer only SMB 2.1 and 3.0
  dittosmb probe fileserver:10445 --dialect 2.1 --dialect 3.0

  # Check the SMB1 to SMB2 upgrade
  dittosmb probe fileserver --smb1 "NT LM 0.12" --smb1 "SMB 2.???"

  # Authenticate
  dittosmb probe fileserver --user alice --domain CORP --password`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringSliceVar(&probeDialects, "dialect", nil, "SMB2 dialect to offer (repeatable, default all)")
	probeCmd.Flags().StringArrayVar(&probeSMB1, "smb1", nil, "Send an SMB1 NEGOTIATE offering this dialect string (repeatable)")
	probeCmd.Flags().StringVarP(&probeUser, "user", "u", "", "User name for session setup")
	probeCmd.Flags().StringVar(&probeDomain, "domain", "", "Domain for session setup")
	probeCmd.Flags().BoolVarP(&probeAskPass, "password", "p", false, "Prompt for the password")
	probeCmd.Flags().BoolVar(&probeGuest, "guest", false, "Set up an anonymous session")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 10*time.Second, "Per-request timeout")
	probeCmd.Flags().StringVarP(&probeOutput, "output", "o", "table", "Output format (table|json|yaml)")
	probeCmd.MarkFlagsMutuallyExclusive("user", "guest")
	probeCmd.MarkFlagsMutuallyExclusive("smb1", "dialect")
}

// ProbeResult is what probe prints.
type ProbeResult struct {
	Address         string   `json:"address" yaml:"address"`
	Dialect         string   `json:"dialect,omitempty" yaml:"dialect,omitempty"`
	Upgraded        bool     `json:"upgraded,omitempty" yaml:"upgraded,omitempty"`
	DialectIndex    *uint16  `json:"dialect_index,omitempty" yaml:"dialect_index,omitempty"`
	ServerGUID      string   `json:"server_guid,omitempty" yaml:"server_guid,omitempty"`
	SigningEnabled  bool     `json:"signing_enabled" yaml:"signing_enabled"`
	SigningRequired bool     `json:"signing_required" yaml:"signing_required"`
	MaxReadSize     uint32   `json:"max_read_size,omitempty" yaml:"max_read_size,omitempty"`
	MaxWriteSize    uint32   `json:"max_write_size,omitempty" yaml:"max_write_size,omitempty"`
	SystemTime      string   `json:"system_time,omitempty" yaml:"system_time,omitempty"`
	Contexts        []string `json:"contexts,omitempty" yaml:"contexts,omitempty"`
	SessionID       string   `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Guest           *bool    `json:"guest,omitempty" yaml:"guest,omitempty"`
}

func (r ProbeResult) pairs() [][2]string {
	pairs := [][2]string{{"Address", r.Address}}
	if r.DialectIndex != nil {
		idx := "none"
		if *r.DialectIndex != 0xFFFF {
			idx = strconv.Itoa(int(*r.DialectIndex))
		}
		pairs = append(pairs, [2]string{"Dialect index", idx})
	}
	if r.Dialect != "" {
		pairs = append(pairs, [2]string{"Dialect", r.Dialect})
	}
	if r.Upgraded {
		pairs = append(pairs, [2]string{"Upgraded", "yes"})
	}
	if r.ServerGUID != "" {
		pairs = append(pairs, [2]string{"Server GUID", r.ServerGUID})
	}
	pairs = append(pairs,
		[2]string{"Signing enabled", yesNo(r.SigningEnabled)},
		[2]string{"Signing required", yesNo(r.SigningRequired)},
	)
	if r.MaxReadSize != 0 {
		pairs = append(pairs,
			[2]string{"Max read", strconv.FormatUint(uint64(r.MaxReadSize), 10)},
			[2]string{"Max write", strconv.FormatUint(uint64(r.MaxWriteSize), 10)},
		)
	}
	if r.SystemTime != "" {
		pairs = append(pairs, [2]string{"Server time", r.SystemTime})
	}
	for _, c := range r.Contexts {
		pairs = append(pairs, [2]string{"Context", c})
	}
	if r.SessionID != "" {
		pairs = append(pairs, [2]string{"Session", r.SessionID})
		pairs = append(pairs, [2]string{"Guest", yesNo(r.Guest != nil && *r.Guest)})
	}
	return pairs
}

func runProbe(cmd *cobra.Command, args []string) error {
	printer, err := newPrinter(probeOutput)
	if err != nil {
		return err
	}
	addr := withDefaultPort(args[0])

	dialects, err := parseDialects(probeDialects)
	if err != nil {
		return err
	}
	d := &client.Dialer{Dialects: dialects, Timeout: probeTimeout}

	ctx, cancel := context.WithTimeout(cmd.Context(), 4*probeTimeout)
	defer cancel()

	var result ProbeResult
	if len(probeSMB1) > 0 {
		result, err = probeLegacy(ctx, d, addr)
	} else {
		result, err = probeSMB2(ctx, d, addr)
	}
	if err != nil {
		return err
	}

	if printer.Format() == output.FormatTable {
		return output.KeyValue(printer.Writer(), result.pairs())
	}
	return printer.Print(result)
}

func probeLegacy(ctx context.Context, d *client.Dialer, addr string) (ProbeResult, error) {
	r, err := d.ProbeSMB1(ctx, addr, probeSMB1)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("SMB1 negotiate with %s: %w", addr, err)
	}

	result := ProbeResult{Address: addr, Upgraded: r.Upgraded}
	if r.Upgraded {
		result.Dialect = r.Revision.String()
		return result, nil
	}
	idx := r.DialectIndex
	result.DialectIndex = &idx
	if r.SMB1 != nil && idx != 0xFFFF {
		result.Dialect = probeSMB1[idx]
		result.ServerGUID = r.SMB1.ServerGUID.String()
		result.SigningEnabled = r.SMB1.SecurityMode&types.SMB1SecurityModeSigningEnabled != 0
		result.SigningRequired = r.SMB1.SecurityMode&types.SMB1SecurityModeSigningRequired != 0
		result.SystemTime = formatTime(r.SMB1.SystemTime)
	}
	return result, nil
}

func probeSMB2(ctx context.Context, d *client.Dialer, addr string) (ProbeResult, error) {
	c, err := d.Dial(ctx, addr)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("negotiate with %s: %w", addr, err)
	}
	defer func() { _ = c.Close() }()

	neg := c.Negotiate
	result := ProbeResult{
		Address:         addr,
		Dialect:         neg.DialectRevision.String(),
		ServerGUID:      neg.ServerGUID.String(),
		SigningEnabled:  neg.SecurityMode.SigningEnabled(),
		SigningRequired: neg.SecurityMode.SigningRequired(),
		MaxReadSize:     neg.MaxReadSize,
		MaxWriteSize:    neg.MaxWriteSize,
		SystemTime:      formatTime(neg.SystemTime),
	}
	for _, nc := range neg.Contexts {
		result.Contexts = append(result.Contexts, nc.String())
	}

	if probeUser == "" && !probeGuest {
		return result, nil
	}

	creds := client.Credentials{User: probeUser, Domain: probeDomain}
	if probeAskPass {
		pw, err := prompt.Password("Password")
		if err != nil {
			return ProbeResult{}, err
		}
		creds.Password = pw
	}
	if err := c.SessionSetup(ctx, creds); err != nil {
		return ProbeResult{}, fmt.Errorf("session setup: %w", err)
	}
	guest := c.Guest()
	result.SessionID = fmt.Sprintf("0x%016x", c.SessionID())
	result.Guest = &guest

	if err := c.Logoff(ctx); err != nil {
		return ProbeResult{}, fmt.Errorf("logoff: %w", err)
	}
	return result, nil
}

// withDefaultPort appends :445 when addr has no port.
func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, "445")
}
