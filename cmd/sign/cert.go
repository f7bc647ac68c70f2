package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcook/rust-tool-action/internal/config"
	"github.com/rcook/rust-tool-action/internal/service"
)

// codeSignFlags are the code-signing settings that can be overridden on
// the command line.
type codeSignFlags struct {
	subject      string
	dnsName      string
	validityDays int
	keyType      string
	keyBits      int
}

func (f *codeSignFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.subject, "subject", "", "certificate subject common name")
	fs.StringVar(&f.dnsName, "dns-name", "", "DNS name placed in the certificate")
	fs.IntVar(&f.validityDays, "validity-days", 0, "certificate lifetime in days")
	fs.StringVar(&f.keyType, "key-type", "", "key type: ecdsa or rsa")
	fs.IntVar(&f.keyBits, "key-bits", 0, "RSA key size: 2048, 3072 or 4096")
}

func (f *codeSignFlags) apply(cmd *cobra.Command, cs *config.CodeSign) {
	fs := cmd.Flags()
	if fs.Changed("subject") {
		cs.Subject = f.subject
	}
	if fs.Changed("dns-name") {
		cs.DNSName = f.dnsName
	}
	if fs.Changed("validity-days") {
		cs.ValidityDays = f.validityDays
	}
	if fs.Changed("key-type") {
		cs.KeyType = f.keyType
	}
	if fs.Changed("key-bits") {
		cs.KeyBits = f.keyBits
	}
}

func (a *app) newCertCommand() *cobra.Command {
	var (
		force bool
		flags codeSignFlags
	)
	cmd := &cobra.Command{
		Use:   "cert [--force] <dest>",
		Short: "Create a code-signing certificate container",
		Long: `Create a self-signed code-signing certificate and export it to <dest>
(a base64 PKCS#12 container) with its passphrase in the sidecar file next to
it. The certificate only passes through the transient store and is purged
from it before cert returns.

Without --force an existing <dest> or sidecar is left untouched and cert
fails.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			cfg := a.config()
			cs := cfg.CodeSign
			flags.apply(cmd, &cs)
			if err := (&config.Config{CodeSign: cs, Release: cfg.Release}).Validate(); err != nil {
				return err
			}

			store, err := service.OpenStore(cs.Store)
			if err != nil {
				return err
			}
			svc := service.NewCertService(store, cs.Store.JournalDir, service.RealClock{}, a.logger)
			res, err := svc.Execute(ctx, service.CertRequest{
				Destination: args[0],
				Force:       force,
				CodeSign:    cs,
			})
			if err != nil {
				return err
			}

			if a.jsonOutput {
				return writeJSON(a.stdout, res)
			}
			fmt.Fprintf(a.stdout, "%s Created %s\n", okMark(), res.Certificate)
			writeFields(a.stdout, "    ", [][2]string{
				{"subject", res.Subject},
				{"thumbprint", res.Thumbprint},
				{"expires", formatTime(res.NotAfter)},
				{"passphrase", res.Passphrase},
			})
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing container")
	flags.register(cmd)
	return cmd
}
