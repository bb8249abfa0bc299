// Package config implements "accelctl config".
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/marmos91/dittoaccel/cmd/accelctl/cmdutil"
	"github.com/marmos91/dittoaccel/internal/cli/output"
	"github.com/marmos91/dittoaccel/pkg/apiclient"
	"github.com/spf13/cobra"
)

// Cmd is the parent command.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Export the framework configuration",
}

var dumpFile string

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the replayable framework configuration",
	Long: `Dump the module, opcode assignment and crypto key calls that rebuild
the current framework state. The JSON form is the replay file format read
by the daemon's accel.replay_file setting.

The dump contains key material.

Examples:
  accelctl config dump
  accelctl config dump -o json
  accelctl config dump --file /var/lib/dittoaccel/accel.json`,
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVar(&dumpFile, "file", "", "Write the JSON dump to a file (mode 0600)")
	Cmd.AddCommand(dumpCmd)
}

// EntryList renders config entries as a table.
type EntryList []apiclient.ConfigEntry

func (l EntryList) Headers() []string {
	return []string{"METHOD", "PARAMS"}
}

func (l EntryList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		rows = append(rows, []string{e.Method, cmdutil.EmptyOr(redact(e.Params), "-")})
	}
	return rows
}

var keyField = regexp.MustCompile(`"(key2?)":"[^"]*"`)

// redact compacts params and hides key material for table output.
func redact(params json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, params); err != nil {
		return string(params)
	}
	return keyField.ReplaceAllString(buf.String(), `"$1":"***"`)
}

func runDump(cmd *cobra.Command, args []string) error {
	entries, err := cmdutil.GetClient().ConfigDump()
	if err != nil {
		return cmdutil.Describe("dump config", err)
	}

	if dumpFile != "" {
		if err := os.MkdirAll(filepath.Dir(dumpFile), 0700); err != nil {
			return err
		}
		f, err := os.OpenFile(dumpFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return err
		}
		if err := output.PrintJSON(f, entries); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d entries to %s\n", len(entries), dumpFile)
		return nil
	}

	return cmdutil.PrintOutput(cmd.OutOrStdout(), entries, len(entries) == 0, "Nothing to dump.", EntryList(entries))
}
