package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcook/rust-tool-action/internal/config"
	"github.com/rcook/rust-tool-action/internal/logging"
	"github.com/rcook/rust-tool-action/internal/service"
)

// signingKeyPassphraseEnv unlocks an encrypted OpenPGP signing key.
const signingKeyPassphraseEnv = config.EnvPrefix + "SIGNING_KEY_PASSPHRASE"

type releaseFlags struct {
	tool        string
	target      string
	exeExt      string
	archiveType string
	buildMode   string
	sign        bool
	version     string
	signingKey  string
	outputDir   string
}

func (f *releaseFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.tool, "tool", "", "executable name without extension")
	fs.StringVar(&f.target, "target", "", "Rust target triple, e.g. x86_64-pc-windows-msvc")
	fs.StringVar(&f.exeExt, "exe-ext", "", "executable extension (default from target)")
	fs.StringVar(&f.archiveType, "archive-type", "", "tar.gz or zip (default from target)")
	fs.StringVar(&f.buildMode, "build-mode", "", "debug or release")
	fs.BoolVar(&f.sign, "sign", false, "Authenticode-sign Windows executables before archiving")
	fs.StringVar(&f.version, "version", "", "release version (default: tag at HEAD, then short commit)")
	fs.StringVar(&f.signingKey, "signing-key", "", "armored OpenPGP private key for detached archive signatures")
	fs.StringVar(&f.outputDir, "output-dir", "", "directory for the archive and its companions")
}

func (f *releaseFlags) apply(cmd *cobra.Command, r *config.Release) {
	fs := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if fs.Changed(name) {
			*dst = v
		}
	}
	set("tool", &r.Tool, f.tool)
	set("target", &r.Target, f.target)
	set("exe-ext", &r.ExeExt, f.exeExt)
	set("archive-type", &r.ArchiveType, f.archiveType)
	set("build-mode", &r.BuildMode, f.buildMode)
	set("version", &r.Version, f.version)
	set("signing-key", &r.SigningKey, f.signingKey)
	set("output-dir", &r.OutputDir, f.outputDir)
	if fs.Changed("sign") {
		r.Sign = f.sign
	}
}

func (a *app) newPackageCommand() *cobra.Command {
	var (
		rel        releaseFlags
		signing    signFlags
		build      bool
		verify     bool
		projectDir string
	)
	cmd := &cobra.Command{
		Use:   "package",
		Short: "Build, sign and archive a release of a Cargo tool",
		Long: `Package target/<triple>/<mode>/<tool><ext> into
<tool>-<version>-<triple>.<archive type>, write its .sha256 checksum file and,
with a signing key, an armored detached OpenPGP signature (.asc).

With --build, cargo build runs first. With --sign, Windows executables are
Authenticode-signed before they are archived; other targets are archived
unsigned.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			cfg := *a.config()
			rel.apply(cmd, &cfg.Release)
			signing.apply(cmd, &cfg.CodeSign)
			if err := cfg.ResolvePaths(); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if projectDir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				projectDir = wd
			}

			req := service.PackageRequest{
				Release:    cfg.Release,
				ProjectDir: projectDir,
				Build:      build,
				Verify:     verify,
			}
			if pass := a.getenv(signingKeyPassphraseEnv); pass != "" {
				logging.Redact(a.logger, pass)
				req.SigningKeyPassphrase = []byte(pass)
			}

			var signer *service.SignService
			if cfg.Release.Sign {
				svc, signReq, err := a.signService(cfg.CodeSign, &signing)
				if err != nil {
					return err
				}
				signer, req.Sign = svc, signReq
			}

			res, err := service.NewPackageService(a.runner, signer, service.RealClock{}, a.logger).Execute(ctx, req)
			if err != nil {
				if res != nil && res.Verification != nil && !a.jsonOutput {
					writeArtifactReport(a, res)
				}
				return err
			}

			if a.jsonOutput {
				return writeJSON(a.stdout, res)
			}
			art := res.Artifacts
			fmt.Fprintf(a.stdout, "%s Packaged %s %s for %s\n", okMark(), res.Plan.Tool, res.Plan.Version, res.Plan.Target.Raw)
			fields := [][2]string{
				{"executable", art.Executable},
				{"signed", fmt.Sprintf("%t", art.Signed)},
				{"archive", art.Archive},
				{"checksum", art.Checksum},
			}
			if art.Signature != "" {
				fields = append(fields, [2]string{"signature", art.Signature})
			}
			writeFields(a.stdout, "    ", fields)
			if res.Verification != nil {
				writeArtifactReport(a, res)
			}
			return nil
		},
	}
	rel.register(cmd)
	signing.register(cmd)
	cmd.Flags().BoolVar(&build, "build", false, "run cargo build first")
	cmd.Flags().BoolVar(&verify, "verify", false, "verify the checksum and signature after packaging")
	cmd.Flags().StringVar(&projectDir, "project-dir", "", "Cargo project directory (default: working directory)")
	return cmd
}

func writeArtifactReport(a *app, res *service.PackageResult) {
	for _, r := range res.Verification.Results {
		mark, detail := okMark(), "ok"
		if !r.Success {
			mark, detail = failMark(), r.Error.Error()
		} else if r.Signer != "" {
			detail = "signed by " + r.Signer
		}
		fmt.Fprintf(a.stdout, "    %s %s: %s\n", mark, r.Method, detail)
	}
}
