package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/adapter/smb/negotiate"
	"github.com/marmos91/dittosmb/internal/capture"
	"github.com/marmos91/dittosmb/internal/cli/output"
)

var (
	replayPort            uint16
	replaySigningRequired bool
	replayOutput          string
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture.pcap>",
	Short: "Replay captured NEGOTIATE requests against this server's negotiator",
	Long: `Read a pcap or pcapng file, reassemble the client side of every SMB
connection and show what dittosmb would answer to each recorded NEGOTIATE.

Useful to check which dialect existing clients would end up with before
deploying, or to reproduce a negotiation failure from a capture.

Examples:
  dittosmb replay clients.pcapng
  dittosmb replay lab.pcap --port 10445 --signing-required -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().Uint16Var(&replayPort, "port", 445, "Server TCP port in the capture")
	replayCmd.Flags().BoolVar(&replaySigningRequired, "signing-required", false, "Negotiate as a server that requires signing")
	replayCmd.Flags().StringVarP(&replayOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

type replayResults []capture.Result

func (r replayResults) Headers() []string {
	return []string{"Time", "Client", "Family", "Offered", "Selected", "Outcome", "Error"}
}

func (r replayResults) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, res := range r {
		selected := res.Selected
		if res.Upgrade {
			selected += " (upgrade)"
		}
		rows = append(rows, []string{
			res.Time.Format("15:04:05.000"),
			res.Client,
			res.Family,
			strings.Join(res.Offered, ","),
			selected,
			res.Outcome,
			res.Error,
		})
	}
	return rows
}

func runReplay(cmd *cobra.Command, args []string) error {
	printer, err := newPrinter(replayOutput)
	if err != nil {
		return err
	}

	results, err := capture.ReplayFile(args[0], capture.Options{
		Port:            replayPort,
		Identity:        negotiate.ServerIdentity{}.WithDefaults(),
		SigningRequired: replaySigningRequired,
	})
	if err != nil {
		return fmt.Errorf("replay %s: %w", args[0], err)
	}

	if len(results) == 0 && printer.Format() == output.FormatTable {
		printer.Warning(fmt.Sprintf("No SMB negotiations found on port %d", replayPort))
		return nil
	}
	return printer.Print(replayResults(results))
}
