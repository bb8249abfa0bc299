package commands

import (
	"fmt"

	"github.com/marmos91/dittoaccel/cmd/accelctl/cmdutil"
	"github.com/marmos91/dittoaccel/internal/cli/output"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server health",
	Long: `Call the liveness and readiness probes of the server.

Examples:
  accelctl status
  accelctl status --server http://accel01:8080 -o json`,
	RunE: runStatus,
}

// Status is the combined probe result.
type Status struct {
	Server string         `json:"server"`
	Live   bool           `json:"live"`
	Ready  bool           `json:"ready"`
	Uptime string         `json:"uptime,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := cmdutil.GetClient()
	status := Status{Server: client.BaseURL()}

	live, err := client.Health()
	if err != nil {
		return cmdutil.Describe("reach server", err)
	}
	status.Live = true
	if up, ok := live.Data["uptime"].(string); ok {
		status.Uptime = up
	}

	if ready, err := client.Ready(); err != nil {
		status.Error = err.Error()
	} else {
		status.Ready = true
		status.Detail = ready.Data
	}

	p, err := cmdutil.Printer(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if p.Structured() {
		return p.Print(status)
	}

	pairs := [][2]string{
		{"Server", status.Server},
		{"Live", cmdutil.BoolToYesNo(status.Live)},
		{"Ready", cmdutil.BoolToYesNo(status.Ready)},
		{"Uptime", cmdutil.EmptyOr(status.Uptime, "-")},
	}
	for _, k := range []string{"modules", "crypto_keys", "bdevs", "live_channels"} {
		if v, ok := status.Detail[k]; ok {
			pairs = append(pairs, [2]string{k, fmt.Sprint(v)})
		}
	}
	if status.Error != "" {
		pairs = append(pairs, [2]string{"Error", status.Error})
	}
	return output.PrintKeyValue(cmd.OutOrStdout(), pairs)
}
