package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcook/rust-tool-action/internal/service"
)

func (a *app) storeService() (*service.StoreService, error) {
	cfg := a.config().CodeSign.Store
	store, err := service.OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	return service.NewStoreService(store, cfg.JournalDir, a.logger), nil
}

func (a *app) newStoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect and clean the transient certificate store",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List certificates currently held by the store",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			svc, err := a.storeService()
			if err != nil {
				return err
			}
			entries, err := svc.List(ctx)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(a.stdout, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintf(a.stdout, "%s %s is empty\n", okMark(), svc.Name())
				return nil
			}
			fmt.Fprintf(a.stdout, "%s %s holds %d certificate(s):\n", warnMark(), svc.Name(), len(entries))
			for _, e := range entries {
				fmt.Fprintf(a.stdout, "    %s  %s  (added %s, expires %s)\n",
					e.Thumbprint, e.Subject, formatTime(e.AddedAt), formatTime(e.NotAfter))
			}
			fmt.Fprintln(a.stdout)
			fmt.Fprintln(a.stdout, "Entries left by an interrupted run are removed by: sign store purge")
			return nil
		},
	}

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Remove certificates left behind by interrupted runs",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			svc, err := a.storeService()
			if err != nil {
				return err
			}
			res, err := svc.Purge(ctx)
			if res != nil {
				if a.jsonOutput {
					if jsonErr := writeJSON(a.stdout, res); jsonErr != nil {
						return jsonErr
					}
				} else {
					mark := okMark()
					if err != nil {
						mark = failMark()
					}
					fmt.Fprintf(a.stdout, "%s Purged %d certificate(s) from %d journal(s)\n", mark, len(res.Purged), res.Journals)
					for _, tp := range res.Purged {
						fmt.Fprintf(a.stdout, "    %s\n", tp)
					}
				}
			}
			return err
		},
	}

	cmd.AddCommand(list, purge)
	return cmd
}
