package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/adapter/smb/dialect"
)

var dialectsOutput string

var dialectsCmd = &cobra.Command{
	Use:   "dialects",
	Short: "List the dialects this server negotiates",
	Long: `List every dialect the server can select, in preference order, with the
signing algorithm each one uses.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printer, err := newPrinter(dialectsOutput)
		if err != nil {
			return err
		}
		return printer.Print(dialectTable(dialect.All()))
	},
}

func init() {
	dialectsCmd.Flags().StringVarP(&dialectsOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

type dialectRow struct {
	Revision      string `json:"revision" yaml:"revision"`
	Name          string `json:"name" yaml:"name"`
	Signing       string `json:"signing" yaml:"signing"`
	NeedsContexts bool   `json:"negotiate_contexts" yaml:"negotiate_contexts"`
}

type dialectRows []dialectRow

func dialectTable(infos []dialect.Info) dialectRows {
	rows := make(dialectRows, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, dialectRow{
			Revision:      info.Version.String(),
			Name:          info.Name,
			Signing:       info.Algorithm.String(),
			NeedsContexts: info.RequiresNegotiateContexts,
		})
	}
	return rows
}

func (r dialectRows) Headers() []string {
	return []string{"Revision", "Name", "Signing", "Negotiate contexts"}
}

func (r dialectRows) Rows() [][]string {
	out := make([][]string, 0, len(r))
	for _, row := range r {
		out = append(out, []string{row.Revision, row.Name, row.Signing, yesNo(row.NeedsContexts)})
	}
	return out
}
