package workctl

import (
	"fmt"

	httpinfra "work-pipeline/internal/infra/http"
	"work-pipeline/internal/infra/store"
	"work-pipeline/internal/usecase"

	"github.com/spf13/cobra"
)

// newLookupCommand constructs the `lookup` subcommand.
func newLookupCommand(opts Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Retrieve a work by id or search works by code prefix",
		Example: `  workctl lookup --id 42
  workctl lookup --work-code consumer- --call-type db`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetInt64("id")
			workCode, _ := cmd.Flags().GetString("work-code")
			callTypeFlag, _ := cmd.Flags().GetString("call-type")

			req := LookupRequest{ID: id, WorkCode: workCode}
			if err := req.Validate(); err != nil {
				return err
			}
			callType, err := ParseCallType(callTypeFlag)
			if err != nil {
				return err
			}

			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}

			var lookup Lookup
			switch callType {
			case CallHTTP:
				lookup = HTTPLookup{Client: httpinfra.NewWorkClient(cfg.ApiURL, httpinfra.RetryPolicy{
					MaxRetries: cfg.ApiRetries,
					Backoff:    cfg.ApiRetryBackoff,
				}, opts.Logger)}
			case CallDB:
				st, err := store.Open(cmd.Context(), cfg.DbDriver, cfg.StoreDSN(), opts.Logger)
				if err != nil {
					return err
				}
				defer st.Close()
				lookup = StoreLookup{Service: usecase.NewWorkService(st.Pooled(), cfg.ApiPrefix, cfg.SearchWindow, opts.Logger)}
			}

			works, err := req.Do(cmd.Context(), lookup)
			if err != nil {
				return fmt.Errorf("lookup via %s failed: %w", callType, err)
			}
			return printJSON(cmd.OutOrStdout(), works)
		},
	}
	cmd.Flags().Int64("id", NoID, "Id of the work to retrieve")
	cmd.Flags().String("work-code", "", "Work code prefix to search for")
	cmd.Flags().String("call-type", "http", "How to reach the works: http|db")
	return cmd
}
