package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcook/rust-tool-action/internal/config"
	"github.com/rcook/rust-tool-action/internal/credential"
)

func (a *app) newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as Lua",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.jsonOutput {
				return writeJSON(a.stdout, a.config())
			}
			fmt.Fprintf(a.stdout, "-- source: %s\n", a.loaded.Source)
			fmt.Fprint(a.stdout, config.NewGenerator().Generate(a.config()))
			return nil
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write a default configuration file",
		Args:        usageArgs(cobra.MaximumNArgs(1)),
		Annotations: map[string]string{"skipSetup": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultFileName
			if len(args) == 1 {
				path = args[0]
			}
			flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
			if force {
				flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			}
			f, err := os.OpenFile(path, flags, 0o644)
			if err != nil {
				if errors.Is(err, os.ErrExist) {
					return fmt.Errorf("%w: %s (use --force to overwrite)", credential.ErrDestinationExists, path)
				}
				return err
			}
			content := config.NewGenerator().Generate(config.Default())
			if _, err := f.WriteString(content); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s Wrote %s\n", okMark(), path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	cmd.AddCommand(show, initCmd)
	return cmd
}
