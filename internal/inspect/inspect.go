package inspect

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/rcook/rust-tool-action/internal/credential"
	"github.com/rcook/rust-tool-action/internal/logging"
	"github.com/rcook/rust-tool-action/internal/release"
)

const (
	sniffSize = 4096

	// MaxReadSize bounds targets that are read into memory whole.
	MaxReadSize = 512 << 20
)

// ErrTooLarge is returned for targets over MaxReadSize that need a full read.
var ErrTooLarge = errors.New("file too large to inspect")

// Options configures an Inspector. Zero values select defaults.
type Options struct {
	// Roots are trusted when classifying Authenticode chains. Nil uses the
	// system pool.
	Roots *x509.CertPool

	CertificateExt string
	PasswordExt    string

	Now    func() time.Time
	Logger logging.Logger
}

// Inspector reports on targets.
type Inspector struct {
	roots   *x509.CertPool
	certExt string
	passExt string
	now     func() time.Time
	logger  logging.Logger
}

// New creates an Inspector.
func New(opts Options) *Inspector {
	i := &Inspector{
		roots:   opts.Roots,
		certExt: opts.CertificateExt,
		passExt: opts.PasswordExt,
		now:     opts.Now,
		logger:  opts.Logger,
	}
	if i.certExt == "" {
		i.certExt = credential.DefaultCertificateExt
	}
	if i.passExt == "" {
		i.passExt = credential.DefaultPassphraseExt
	}
	if i.now == nil {
		i.now = time.Now
	}
	if i.logger == nil {
		i.logger = logging.Nop()
	}
	return i
}

// InspectAll inspects every target in order. The error aggregates the
// failed targets and is nil when all succeeded.
func (i *Inspector) InspectAll(ctx context.Context, targets []string) ([]*Result, error) {
	results := make([]*Result, 0, len(targets))
	var errs *multierror.Error
	for _, target := range targets {
		r := i.Inspect(ctx, target)
		if r.Err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", target, r.Err))
		}
		results = append(results, r)
	}
	return results, errs.ErrorOrNil()
}

// Inspect reports on one target. It never returns nil and never panics;
// a failure is recorded in the result.
func (i *Inspector) Inspect(ctx context.Context, target string) (r *Result) {
	r = &Result{Target: target, Kind: KindUnknown}
	defer func() {
		if p := recover(); p != nil {
			r.fail(fmt.Errorf("internal error inspecting %s: %v", target, p))
		}
	}()

	if err := ctx.Err(); err != nil {
		r.fail(err)
		return r
	}

	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.fail(fmt.Errorf("no such file: %s", target))
		} else {
			r.fail(err)
		}
		return r
	}
	if info.IsDir() {
		r.fail(fmt.Errorf("%s is a directory", target))
		return r
	}

	head, err := readHead(target)
	if err != nil {
		r.fail(err)
		return r
	}

	r.Kind = i.sniff(target, head)
	i.logger.Debug("inspecting", "target", target, "kind", string(r.Kind))

	var inspectErr error
	switch r.Kind {
	case KindExecutable:
		inspectErr = i.executable(ctx, target, r)
	case KindArchive:
		inspectErr = i.archive(target, r)
	case KindCertificate:
		inspectErr = i.certificate(target, r)
	case KindOpenPGPKey, KindOpenPGPSignature:
		inspectErr = i.openPGP(target, r)
	case KindContainer:
		inspectErr = i.container(target, r)
	case KindSigstoreBundle:
		inspectErr = i.sigstoreBundle(target, r)
	case KindChecksums:
		inspectErr = i.checksums(target, r)
	default:
		r.Kind = KindFile
		inspectErr = i.file(target, info, r)
	}
	if inspectErr != nil {
		r.fail(inspectErr)
	}
	return r
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, sniffSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

func readAll(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxReadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}
	return os.ReadFile(path)
}

func (i *Inspector) sniff(path string, head []byte) Kind {
	name := strings.ToLower(filepath.Base(path))
	ext := filepath.Ext(name)

	switch {
	case bytes.HasPrefix(head, []byte("MZ")):
		return KindExecutable
	case isArchive(name, head):
		return KindArchive
	case bytes.Contains(head, []byte("-----BEGIN CERTIFICATE-----")):
		return KindCertificate
	case bytes.Contains(head, []byte("-----BEGIN PGP SIGNATURE-----")):
		return KindOpenPGPSignature
	case bytes.Contains(head, []byte("-----BEGIN PGP ")):
		return KindOpenPGPKey
	case strings.EqualFold(ext, i.certExt), ext == ".pfx", ext == ".p12":
		return KindContainer
	case isSigstoreBundle(head):
		return KindSigstoreBundle
	case ext == release.ChecksumExt, ext == ".sha256sum", name == "sha256sums":
		return KindChecksums
	case ext == ".sig", ext == ".gpg", ext == ".pgp":
		return KindOpenPGPSignature
	case (ext == ".cer" || ext == ".der") && len(head) > 0 && head[0] == 0x30:
		return KindCertificate
	}
	return KindFile
}
