package main

import (
	"github.com/spf13/cobra"

	"github.com/rcook/rust-tool-action/internal/service"
)

func (a *app) newVerifyCommand() *cobra.Command {
	var rootsFile string
	cmd := &cobra.Command{
		Use:   "verify <executable>",
		Short: "Check an executable's Authenticode signature",
		Long: `Check the signature of <executable> and print who signed it, when, and
whether its certificate chain ends in a trusted root. A self-signed or unknown
root is reported but does not make the signature invalid.

Exits 0 only when a structurally valid signature is present.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			report, err := service.NewVerifyService().Execute(ctx, service.VerifyRequest{
				Executable: args[0],
				RootsFile:  rootsFile,
			})
			if report == nil {
				return err
			}
			if a.jsonOutput {
				if jsonErr := writeJSON(a.stdout, report); jsonErr != nil {
					return jsonErr
				}
				return err
			}
			writeReport(a.stdout, report)
			return err
		},
	}
	cmd.Flags().StringVar(&rootsFile, "roots", "", "PEM file of additional trusted roots")
	return cmd
}
