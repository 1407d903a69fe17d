package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dukerupert/shopmate/internal/model"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // operation failed (item not found, remote rejected, ...)
	ExitCommandError = 2 // bad flags, unreadable config or database
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope for --format json.
type CLIResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

// printer writes command results as JSON or human-readable text.
type printer struct {
	format string
	w      io.Writer
}

func (o *RootOptions) printer() *printer {
	return &printer{format: o.Format, w: o.stdout}
}

func (p *printer) json() bool { return p.format == "json" }

// result prints data as JSON, or calls text for the human form.
func (p *printer) result(data any, text func(w io.Writer)) error {
	if p.json() {
		return json.NewEncoder(p.w).Encode(CLIResponse{Status: "ok", Data: data})
	}
	text(p.w)
	return nil
}

func (p *printer) items(items []model.Item) error {
	if items == nil {
		items = []model.Item{}
	}
	return p.result(items, func(w io.Writer) {
		if len(items) == 0 {
			fmt.Fprintln(w, "Nothing here.")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tQTY\tCATEGORY\tPRICE\tWHERE")
		for _, it := range items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", shortID(it.ID), it.Name, it.Quantity, it.Category, price(it), where(it))
		}
		tw.Flush()
	})
}

func (p *printer) item(verb string, it model.Item) error {
	return p.result(it, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s (%s)\n", verb, it.Name, shortID(it.ID))
	})
}

func (p *printer) message(data any, format string, args ...any) error {
	return p.result(data, func(w io.Writer) {
		fmt.Fprintf(w, format+"\n", args...)
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func price(it model.Item) string {
	if !it.Price.Valid {
		return "-"
	}
	return it.Price.Decimal.StringFixed(2)
}

func where(it model.Item) string {
	if it.InPantry {
		return "pantry"
	}
	return "to buy"
}

func ago(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t).Round(time.Second)
	if d < time.Second {
		return "just now"
	}
	return d.String() + " ago"
}
