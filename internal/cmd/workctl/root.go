// Package workctl holds the operator CLI commands.
package workctl

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"work-pipeline/internal/config"
	"work-pipeline/internal/infra/amqp"

	"github.com/spf13/cobra"
)

// Options wires the CLI to its environment.
type Options struct {
	// LoadConfig returns the pipeline configuration.
	LoadConfig func() (*config.Config, error)
	// Dial connects to the broker; nil uses amqp.Dial.
	Dial   amqp.Dialer
	Logger *slog.Logger
}

// NewRootCommand constructs the `workctl` command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.LoadConfig == nil {
		opts.LoadConfig = config.Load
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	root := &cobra.Command{
		Use:           "workctl",
		Short:         "Operate the work pipeline",
		Long:          "workctl looks works up over HTTP or straight from the store, publishes demands and inspects the pipeline daemons.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newLookupCommand(opts),
		newPublishCommand(opts),
		newDeclareQueueCommand(opts),
		newNodesCommand(opts),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
