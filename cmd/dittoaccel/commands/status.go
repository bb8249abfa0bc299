package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/dittoaccel/internal/cli/output"
	"github.com/marmos91/dittoaccel/pkg/apiclient"
	"github.com/spf13/cobra"
)

var (
	statusOutput  string
	statusPidFile string
	statusAPIPort int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Display the status of the dittoaccel daemon.

The PID file tells whether the process runs; the health endpoints tell
whether the framework has started.

Examples:
  dittoaccel status
  dittoaccel status --api-port 9080 -o json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/dittoaccel/dittoaccel.pid)")
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", 8080, "API server port")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// DaemonStatus is the status report.
type DaemonStatus struct {
	Running   bool   `json:"running"`
	PID       int    `json:"pid,omitempty"`
	Ready     bool   `json:"ready"`
	StartedAt string `json:"started_at,omitempty"`
	Uptime    string `json:"uptime,omitempty"`
	Modules   int    `json:"modules,omitempty"`
	Keys      int    `json:"crypto_keys,omitempty"`
	Bdevs     int    `json:"bdevs,omitempty"`
	Message   string `json:"message"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}
	status := DaemonStatus{Message: "dittoaccel is not running"}
	if pid, running := readPid(pidPath); running {
		status.Running, status.PID = true, pid
	}

	client := apiclient.New(fmt.Sprintf("http://localhost:%d", statusAPIPort)).WithTimeout(2 * time.Second)
	collectHealth(client, &status)

	p := output.NewPrinter(os.Stdout, format, true)
	if p.Structured() {
		return p.Print(status)
	}
	return output.PrintKeyValue(os.Stdout, statusPairs(status))
}

func collectHealth(client *apiclient.Client, status *DaemonStatus) {
	live, err := client.Health()
	if err != nil {
		if status.Running {
			status.Message = "Process exists but the API does not answer"
		}
		return
	}
	status.Running = true
	if s, ok := live.Data["started_at"].(string); ok {
		status.StartedAt = s
	}
	if s, ok := live.Data["uptime"].(string); ok {
		status.Uptime = s
	}

	ready, err := client.Ready()
	if err != nil {
		status.Message = "Running, framework not started"
		return
	}
	status.Ready = true
	status.Modules = intField(ready.Data, "modules")
	status.Keys = intField(ready.Data, "crypto_keys")
	status.Bdevs = intField(ready.Data, "bdevs")
	status.Message = "Running and ready"
}

// intField reads a JSON number decoded into a map.
func intField(data map[string]any, key string) int {
	if f, ok := data[key].(float64); ok {
		return int(f)
	}
	return 0
}

func statusPairs(s DaemonStatus) [][2]string {
	state := "stopped"
	if s.Running {
		state = "running"
	}
	pairs := [][2]string{{"Status", state}}
	if s.PID != 0 {
		pairs = append(pairs, [2]string{"PID", fmt.Sprint(s.PID)})
	}
	if t, err := time.Parse(time.RFC3339, s.StartedAt); err == nil {
		pairs = append(pairs, [2]string{"Started", fmt.Sprintf("%s (%s)", t.Local().Format(time.DateTime), humanize.Time(t))})
	}
	if s.Ready {
		pairs = append(pairs,
			[2]string{"Modules", fmt.Sprint(s.Modules)},
			[2]string{"Crypto keys", fmt.Sprint(s.Keys)},
			[2]string{"Bdevs", fmt.Sprint(s.Bdevs)},
		)
	}
	return append(pairs, [2]string{"Message", s.Message})
}
