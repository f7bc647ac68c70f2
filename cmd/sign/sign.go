package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcook/rust-tool-action/internal/config"
	"github.com/rcook/rust-tool-action/internal/credential"
	"github.com/rcook/rust-tool-action/internal/logging"
	"github.com/rcook/rust-tool-action/internal/service"
	"github.com/rcook/rust-tool-action/internal/tsa"
)

// signFlags select the credentials and timestamping for commands that
// sign executables.
type signFlags struct {
	cert          string
	passphraseEnv string
	timestampURL  string
	noTimestamp   bool
	description   string
	url           string
}

func (f *signFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.cert, "cert", "", "certificate container (default: the credential bundle in the environment)")
	fs.StringVar(&f.passphraseEnv, "passphrase-env", "", "read the container passphrase from this environment variable instead of the sidecar file")
	fs.StringVar(&f.timestampURL, "timestamp-url", "", "RFC 3161 timestamp authority")
	fs.BoolVar(&f.noTimestamp, "no-timestamp", false, "do not timestamp the signature")
	fs.StringVar(&f.description, "description", "", "program description embedded in the signature")
	fs.StringVar(&f.url, "url", "", "program URL embedded in the signature")
}

func (f *signFlags) apply(cmd *cobra.Command, cs *config.CodeSign) {
	fs := cmd.Flags()
	if fs.Changed("timestamp-url") {
		cs.TimestampURL = f.timestampURL
	}
	if f.noTimestamp {
		cs.TimestampURL = ""
	}
	if fs.Changed("description") {
		cs.Description = f.description
	}
	if fs.Changed("url") {
		cs.URL = f.url
	}
}

// signService builds the sign service for cs and the request template
// carrying the credential choice.
func (a *app) signService(cs config.CodeSign, f *signFlags) (*service.SignService, service.SignRequest, error) {
	req := service.SignRequest{Certificate: f.cert, CodeSign: cs}
	if f.passphraseEnv != "" {
		value := a.getenv(f.passphraseEnv)
		if value == "" {
			return nil, req, fmt.Errorf("%w: %s is not set", credential.ErrPassphraseNotFound, f.passphraseEnv)
		}
		logging.Redact(a.logger, value)
		req.Passphrase = credential.Passphrase(value)
	}

	store, err := service.OpenStore(cs.Store)
	if err != nil {
		return nil, req, err
	}
	opts := []service.SignOption{service.WithSignLogger(a.logger)}
	if a.environ != nil {
		opts = append(opts, service.WithEnviron(a.environ))
	}
	if cs.TimestampURL != "" {
		client, err := tsa.New(cs.TimestampURL, tsa.WithLogger(a.logger))
		if err != nil {
			return nil, req, err
		}
		opts = append(opts, service.WithTimestamper(client))
	} else {
		a.logger.Warn("timestamping disabled; the signature expires with the certificate")
	}
	return service.NewSignService(store, cs.Store.JournalDir, opts...), req, nil
}

func (a *app) newSignCommand() *cobra.Command {
	var (
		flags  signFlags
		verify bool
	)
	cmd := &cobra.Command{
		Use:   "sign [--cert <cert>] <executable>  |  sign <cert> <executable>",
		Short: "Authenticode-sign a Windows executable in place",
		Long: `Sign <executable> with the identity in a certificate container. The
container is --cert (or the first argument) with its passphrase sidecar, or
the base64 container and passphrase in <prefix>CRT and <prefix>CRTPASS.

The executable is replaced only once the signature, including its timestamp,
is complete. A timestamp authority that cannot be reached exits with code 3.`,
		Args: usageArgs(cobra.RangeArgs(1, 2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			exe := args[len(args)-1]
			if len(args) == 2 {
				if flags.cert != "" {
					return usageError{errors.New("certificate given both as --cert and as an argument")}
				}
				flags.cert = args[0]
			}

			ctx, cancel := a.context(cmd)
			defer cancel()

			cs := a.config().CodeSign
			flags.apply(cmd, &cs)

			svc, req, err := a.signService(cs, &flags)
			if err != nil {
				return err
			}
			req.Executable = exe
			req.Verify = verify

			res, err := svc.Execute(ctx, req)
			if err != nil {
				return err
			}

			if a.jsonOutput {
				return writeJSON(a.stdout, res)
			}
			timestamp := "yes"
			if !res.Timestamped {
				timestamp = "no"
			}
			fmt.Fprintf(a.stdout, "%s Signed %s\n", okMark(), res.Executable)
			writeFields(a.stdout, "    ", [][2]string{
				{"signer", res.Subject},
				{"thumbprint", res.Thumbprint},
				{"credentials", res.Source},
				{"timestamped", timestamp},
			})
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&verify, "verify", false, "verify the signature after signing")
	return cmd
}
