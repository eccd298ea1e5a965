package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	fieldColor   = color.New(color.FgWhite)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// Output wraps command output with JSON/plain-text switching.
type Output struct {
	cmd  *cobra.Command
	json bool
}

// NewOutput creates an Output helper bound to the command's flags.
func NewOutput(cmd *cobra.Command) *Output {
	jsonOut, _ := cmd.Flags().GetBool("json")
	return &Output{cmd: cmd, json: jsonOut}
}

// IsJSON reports whether JSON output was requested.
func (o *Output) IsJSON() bool {
	return o.json
}

// JSON marshals v and writes it to stdout.
func (o *Output) JSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error marshaling output: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// Println writes a plain line.
func (o *Output) Println(s string) {
	fmt.Println(s)
}

// Printf writes a formatted line.
func (o *Output) Printf(format string, args ...any) {
	fmt.Printf(format, args...)
}

// Header writes a section header.
func (o *Output) Header(s string) {
	headerColor.Printf("\n%s\n", s)
}

// Field writes an indented key/value pair.
func (o *Output) Field(key, format string, args ...any) {
	fieldColor.Printf("  %-22s %s\n", key+":", fmt.Sprintf(format, args...))
}

// Success writes a green message.
func (o *Output) Success(format string, args ...any) {
	successColor.Printf(format+"\n", args...)
}

// Warn writes a yellow message.
func (o *Output) Warn(format string, args ...any) {
	warnColor.Printf(format+"\n", args...)
}

// Error writes a red message to stderr.
func (o *Output) Error(format string, args ...any) {
	errorColor.Fprintf(os.Stderr, format+"\n", args...)
}
