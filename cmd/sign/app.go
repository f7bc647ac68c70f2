package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rcook/rust-tool-action/internal/config"
	"github.com/rcook/rust-tool-action/internal/logging"
	"github.com/rcook/rust-tool-action/internal/platform"
	"github.com/rcook/rust-tool-action/internal/release"
)

const defaultTimeout = 2 * time.Minute

// app holds the state shared by every command: global flags, the logger
// and the loaded configuration.
type app struct {
	stdout io.Writer
	stderr io.Writer

	// environ replaces the process environment when non-nil.
	environ  map[string]string
	detector platform.Detector
	runner   release.Runner

	configPath   string
	logLevel     string
	jsonOutput   bool
	noColor      bool
	timeout      time.Duration
	storeBackend string
	storeDir     string

	log    *logging.Log
	logger logging.Logger
	loaded *config.Loaded
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:   stdout,
		stderr:   stderr,
		detector: platform.NewDetector(),
		runner:   release.ExecRunner{Stdout: stderr, Stderr: stderr},
		logger:   logging.Nop(),
	}
}

func (a *app) getenv(key string) string {
	if a.environ != nil {
		return a.environ[key]
	}
	return os.Getenv(key)
}

// setup configures logging and loads the configuration. Flags that mirror
// config settings are applied last so they win over file and environment.
func (a *app) setup(cmd *cobra.Command) error {
	if a.noColor || a.jsonOutput {
		color.NoColor = true
	}

	level := a.logLevel
	if level == "" {
		level = a.getenv(config.EnvPrefix + "LOG_LEVEL")
	}
	log, err := logging.New(logging.Options{Level: level, Output: a.stderr})
	if err != nil {
		return usageError{err}
	}
	a.log = log
	a.logger = log.Adapter()

	ctx, cancel := a.context(cmd)
	defer cancel()
	loaded, err := config.Load(ctx, config.LoadOptions{
		Path:     a.configPath,
		Detector: a.detector,
		Logger:   a.logger,
		Environ:  a.environ,
	})
	if err != nil {
		return err
	}

	store := &loaded.Config.CodeSign.Store
	if cmd.Flags().Changed("store") {
		store.Backend = a.storeBackend
	}
	if cmd.Flags().Changed("store-dir") {
		store.Dir = a.storeDir
		store.JournalDir = ""
	}
	if err := loaded.Config.ResolvePaths(); err != nil {
		return err
	}
	if err := loaded.Config.Validate(); err != nil {
		return err
	}
	a.loaded = loaded
	return nil
}

func (a *app) config() *config.Config {
	return a.loaded.Config
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	if a.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, a.timeout)
}

func (a *app) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "sign",
		Short:         "Code-signing certificate lifecycle and release packaging",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["skipSetup"] == "true" {
				return nil
			}
			return a.setup(cmd)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetVersionTemplate(fmt.Sprintf("sign %s\n", Version))
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default $RUST_TOOL_ACTION_CONFIG or ./sign.lua)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&a.jsonOutput, "json", false, "print results as JSON")
	pf.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	pf.DurationVar(&a.timeout, "timeout", defaultTimeout, "overall time limit for the command")
	pf.StringVar(&a.storeBackend, "store", "", "transient certificate store: memory or dir")
	pf.StringVar(&a.storeDir, "store-dir", "", "directory for the dir store")

	root.AddCommand(
		a.newInfoCommand(),
		a.newCertCommand(),
		a.newSignCommand(),
		a.newVerifyCommand(),
		a.newPackageCommand(),
		a.newStoreCommand(),
		a.newConfigCommand(),
		a.newVersionCommand(),
	)
	return root
}

// run executes the command line and returns the process exit code.
func run(args []string, a *app) int {
	root := a.newRootCommand()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return 0
}

func (a *app) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Args:        usageArgs(cobra.NoArgs),
		Annotations: map[string]string{"skipSetup": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.stdout, "sign %s\n", Version)
			return nil
		},
	}
}
