// Package cmdutil holds helpers shared by the accelctl commands.
package cmdutil

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/marmos91/dittoaccel/internal/cli/output"
	"github.com/marmos91/dittoaccel/internal/cli/prompt"
	"github.com/marmos91/dittoaccel/pkg/apiclient"
)

// EnvServer overrides the default server URL.
const EnvServer = "ACCELCTL_SERVER"

// DefaultServer is used when neither --server nor ACCELCTL_SERVER is set.
const DefaultServer = "http://localhost:8080"

// Flags stores the global flag values.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ServerURL string
	Output    string
	NoColor   bool
	Timeout   time.Duration
}

// ServerURL resolves the server address: flag, then environment, then
// default.
func ServerURL() string {
	if Flags.ServerURL != "" {
		return Flags.ServerURL
	}
	if env := os.Getenv(EnvServer); env != "" {
		return env
	}
	return DefaultServer
}

// GetClient returns an API client for the resolved server.
func GetClient() *apiclient.Client {
	c := apiclient.New(ServerURL())
	if Flags.Timeout > 0 {
		c = c.WithTimeout(Flags.Timeout)
	}
	return c
}

// GetOutputFormat returns the parsed -o flag.
func GetOutputFormat() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// Printer returns a printer for the -o flag.
func Printer(w io.Writer) (*output.Printer, error) {
	format, err := GetOutputFormat()
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(w, format, !Flags.NoColor), nil
}

// PrintOutput prints a list. In table format an empty list prints
// emptyMsg instead of a header-only table.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, table output.TableRenderer) error {
	p, err := Printer(w)
	if err != nil {
		return err
	}
	if p.Structured() {
		return p.Print(data)
	}
	if isEmpty {
		_, _ = fmt.Fprintln(w, emptyMsg)
		return nil
	}
	return output.PrintTable(w, table)
}

// PrintResourceWithSuccess prints data in JSON or YAML, or successMsg in
// table format.
func PrintResourceWithSuccess(w io.Writer, data any, successMsg string) error {
	p, err := Printer(w)
	if err != nil {
		return err
	}
	if p.Structured() {
		return p.Print(data)
	}
	p.Success(successMsg)
	return nil
}

// RunDeleteWithConfirmation asks before calling deleteFn unless force is
// set.
func RunDeleteWithConfirmation(w io.Writer, resourceType, name string, force bool, deleteFn func() error) error {
	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Delete %s '%s'?", resourceType, name), force)
	if err != nil {
		return HandleAbort(w, err)
	}
	if !confirmed {
		_, _ = fmt.Fprintln(w, "Aborted.")
		return nil
	}
	if err := deleteFn(); err != nil {
		return err
	}

	p, err := Printer(w)
	if err != nil {
		return err
	}
	p.Success(fmt.Sprintf("%s '%s' deleted", resourceType, name))
	return nil
}

// HandleAbort turns a Ctrl+C at a prompt into a clean exit.
func HandleAbort(w io.Writer, err error) error {
	if prompt.IsAborted(err) {
		_, _ = fmt.Fprintln(w, "\nAborted.")
		return nil
	}
	return err
}

// EmptyOr returns fallback for an empty value.
func EmptyOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// BoolToYesNo renders a flag for table cells.
func BoolToYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Describe wraps err with what failed. Problem details from the server
// are kept, a 503 gets a hint about the framework state.
func Describe(action string, err error) error {
	if apiErr, ok := err.(*apiclient.APIError); ok && apiErr.IsUnavailable() {
		return fmt.Errorf("failed to %s: %w (is the framework started?)", action, err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
