package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	stopPidFile string
	stopForce   bool
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the dittoaccel daemon",
	Long: `Stop a running dittoaccel daemon.

A graceful stop rewrites the replay file, deletes the crypto bdevs and
finishes the framework. --force kills the process without any of that.

Examples:
  dittoaccel stop
  dittoaccel stop --pid-file /run/dittoaccel.pid
  dittoaccel stop --force`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().StringVar(&stopPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/dittoaccel/dittoaccel.pid)")
	stopCmd.Flags().BoolVarP(&stopForce, "force", "f", false, "Kill immediately instead of shutting down gracefully")
}

func runStop(cmd *cobra.Command, args []string) error {
	pidPath := stopPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	if _, err := os.Stat(pidPath); os.IsNotExist(err) {
		return fmt.Errorf("PID file not found: %s\n\nIs the daemon running?", pidPath)
	}
	pid, running := readPid(pidPath)
	if pid == 0 {
		return fmt.Errorf("invalid PID file: %s", pidPath)
	}
	if !running {
		fmt.Println("dittoaccel already stopped")
		_ = os.Remove(pidPath)
		return nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := stopProcess(process, pid, stopForce); err != nil {
		if errors.Is(err, errProcessDone) {
			fmt.Println("dittoaccel already stopped")
			_ = os.Remove(pidPath)
			return nil
		}
		return err
	}

	if stopForce {
		_ = os.Remove(pidPath)
		fmt.Println("dittoaccel terminated")
	} else {
		fmt.Println("Shutdown signal sent. dittoaccel will stop gracefully.")
	}
	return nil
}
