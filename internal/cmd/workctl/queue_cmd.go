package workctl

import (
	"fmt"

	"work-pipeline/internal/domain"
	"work-pipeline/internal/factory"
	"work-pipeline/internal/infra/amqp"

	"github.com/spf13/cobra"
)

// newPublishCommand constructs the `publish` subcommand.
func newPublishCommand(opts Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish one work demand to the queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addUpTo, _ := cmd.Flags().GetInt("add-up-to")

			demand := factory.GenerateRandomWorkDemand()
			if cmd.Flags().Changed("add-up-to") {
				demand = domain.WorkDemand{AddUpTo: addUpTo}
			}
			if err := demand.Validate(); err != nil {
				return err
			}

			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			q := amqp.NewQueue(cfg.AmqpURL, cfg.AmqpQueue, opts.Dial, opts.Logger)
			if err := q.Publish(cmd.Context(), demand); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "published %+v to %s\n", demand, q.Name())
			return nil
		},
	}
	cmd.Flags().Int("add-up-to", 0, "Computation bound (random in [1, 100) when omitted)")
	return cmd
}

// newDeclareQueueCommand constructs the `declare-queue` subcommand.
func newDeclareQueueCommand(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "declare-queue",
		Short: "Declare the durable work queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			q := amqp.NewQueue(cfg.AmqpURL, cfg.AmqpQueue, opts.Dial, opts.Logger)
			if err := q.DeclareQueue(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "declared", q.Name())
			return nil
		},
	}
}
