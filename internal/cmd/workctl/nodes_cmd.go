package workctl

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"work-pipeline/internal/health"
	"work-pipeline/internal/infra/etcd"

	"github.com/spf13/cobra"
)

// newNodesCommand constructs the `nodes` subcommand.
func newNodesCommand(opts Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List registered producer and consumer daemons with their health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")

			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			if !cfg.LeaderElectionEnabled() {
				return fmt.Errorf("etcd_endpoints is not configured, daemons do not register")
			}

			client, err := etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
			if err != nil {
				return err
			}
			defer client.Close()

			discovery := etcd.NewDiscovery(client, opts.Logger)
			if err := discovery.Load(cmd.Context()); err != nil {
				return err
			}

			prober := health.NewProber(opts.Logger)
			defer prober.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROLE\tID\tADDR\tSTATUS")
			for _, n := range discovery.Nodes() {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				status, err := prober.Check(ctx, n.Addr, n.Role)
				cancel()
				state := status.String()
				if err != nil {
					state = "UNREACHABLE"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.Role, n.ID, n.Addr, state)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Duration("timeout", 2*time.Second, "Health check timeout per node")
	return cmd
}
