package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcook/rust-tool-action/internal/inspect"
	"github.com/rcook/rust-tool-action/internal/service"
)

func (a *app) newInfoCommand() *cobra.Command {
	var rootsFile string
	cmd := &cobra.Command{
		Use:   "info [target...]",
		Short: "Show details of executables, containers, certificates and release artifacts",
		Long: `Show details of each target. Every target is inspected on its own: a
target that cannot be read is reported and the remaining targets are still
inspected. The exit code is non-zero if any target failed.

Without targets, info describes the environment: working directory, host
platform, timestamp authority, certificate store and config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			cfg := a.config()
			opts := inspect.Options{
				CertificateExt: cfg.CodeSign.CertificateExt,
				PasswordExt:    cfg.CodeSign.PasswordExt,
				Logger:         a.logger,
			}
			if rootsFile != "" {
				roots, err := service.LoadRoots(rootsFile)
				if err != nil {
					return err
				}
				opts.Roots = roots
			}

			svc := service.NewInfoService(inspect.New(opts), a.detector, a.logger)
			res, err := svc.Execute(ctx, service.InfoRequest{
				Targets:    args,
				Args:       os.Args,
				Config:     cfg,
				ConfigFile: a.loaded.Source,
				Version:    Version,
			})
			if res == nil {
				return err
			}

			if a.jsonOutput {
				if jsonErr := writeJSON(a.stdout, res); jsonErr != nil {
					return jsonErr
				}
				return err
			}
			if res.Environment != nil {
				writeEnvironment(a, res.Environment)
				return err
			}
			for _, r := range res.Results {
				writeInspectResult(a.stdout, r)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&rootsFile, "roots", "", "PEM file of additional trusted roots for executable signatures")
	return cmd
}

func writeEnvironment(a *app, env *service.Environment) {
	host := env.HostError
	if env.Host != nil {
		host = env.Host.String()
	}
	configFile := env.ConfigFile
	if configFile == "" {
		configFile = "defaults"
	}
	timestampURL := env.TimestampURL
	if timestampURL == "" {
		timestampURL = "disabled"
	}
	fmt.Fprintf(a.stdout, "sign %s\n", env.Version)
	writeFields(a.stdout, "  ", [][2]string{
		{"working directory", env.WorkingDir},
		{"arguments", fmt.Sprintf("%q", env.Args)},
		{"host", host},
		{"config", configFile},
		{"timestamp authority", timestampURL},
		{"certificate store", env.StoreBackend},
		{"credential env", env.EnvPrefix + "CRT, " + env.EnvPrefix + "CRTPASS"},
	})
}
