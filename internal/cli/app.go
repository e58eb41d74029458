// Package cli implements the sequinctl command tree.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sequinstream/sequin-go/internal/logger"
	"github.com/sequinstream/sequin-go/pkg/sequin"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version information set at build time via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// AppOption customizes App dependencies.
type AppOption func(*App)

// App holds CLI state and runtime dependencies.
type App struct {
	root *cobra.Command

	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	baseURL string
	options []string
	verbose bool
}

// WithIO injects process I/O streams.
func WithIO(stdin io.Reader, stdout, stderr io.Writer) AppOption {
	return func(a *App) {
		if stdin != nil {
			a.stdin = stdin
		}
		if stdout != nil {
			a.stdout = stdout
		}
		if stderr != nil {
			a.stderr = stderr
		}
	}
}

// NewApp creates a CLI app bound to the process streams by default.
func NewApp(opts ...AppOption) *App {
	a := &App{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.root = a.newRootCommand()
	return a
}

func (a *App) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "sequinctl",
		Short: "sequinctl - manage Sequin streams from the command line",
		Long: `sequinctl talks to a Sequin server over HTTP.

The server URL comes from --url, then SEQUIN_URL, then http://localhost:7376.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.baseURL, "url", "", "Sequin base URL (default $SEQUIN_URL or http://localhost:7376)")
	root.PersistentFlags().StringArrayVar(&a.options, "option", nil, "extra create option as key=value (repeatable)")
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "log requests to stderr")

	root.AddCommand(a.newStreamCommand())
	root.AddCommand(a.newConsumerCommand())
	root.AddCommand(a.newSendCommand())
	root.AddCommand(a.newReceiveCommand())
	root.AddCommand(a.newSettleCommand("ack", "Acknowledge deliveries", (*sequin.Client).AckMessages))
	root.AddCommand(a.newSettleCommand("nack", "Reject deliveries for redelivery", (*sequin.Client).NackMessages))
	root.AddCommand(a.newVersionCommand())

	return root
}

// Execute runs the command tree with args. Failures are printed as a
// {status, summary} JSON object on stderr.
func (a *App) Execute(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	a.root.SetIn(a.stdin)
	a.root.SetOut(a.stdout)
	a.root.SetErr(a.stderr)

	err := a.root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var serr *sequin.Error
	if !errors.As(err, &serr) {
		// Argument and flag errors from cobra.
		serr = &sequin.Error{Status: 400, Summary: err.Error()}
	}
	_ = writeJSON(a.stderr, serr)
	return serr
}

func (a *App) client() *sequin.Client {
	opts := []sequin.Option{sequin.WithBaseURL(a.baseURL)}
	if a.verbose {
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.AddSync(a.stderr),
			zapcore.DebugLevel,
		)
		opts = append(opts, sequin.WithLogger(logger.NewZapLogger(zap.New(core).Sugar())))
	}
	return sequin.NewClient(opts...)
}

// createOptions parses --option key=value pairs. Values that are valid JSON
// keep their type; anything else is sent as a string.
func (a *App) createOptions() (sequin.Options, error) {
	if len(a.options) == 0 {
		return nil, nil
	}
	opts := make(sequin.Options, len(a.options))
	for _, kv := range a.options {
		key, raw, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, usageError(fmt.Sprintf("invalid --option %q (expected key=value)", kv))
		}
		opts[key] = parseValue(raw)
	}
	return opts, nil
}

func parseValue(raw string) any {
	if !gjson.Valid(raw) {
		return raw
	}
	return gjson.Parse(raw).Value()
}

func usageError(summary string) error {
	return &sequin.Error{Status: 400, Summary: summary}
}

func (a *App) emit(v any) error {
	return writeJSON(a.stdout, v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
