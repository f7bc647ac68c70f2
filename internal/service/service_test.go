package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rcook/rust-tool-action/internal/authenticode"
	"github.com/rcook/rust-tool-action/internal/certstore"
	"github.com/rcook/rust-tool-action/internal/config"
	"github.com/rcook/rust-tool-action/internal/credential"
	"github.com/rcook/rust-tool-action/internal/inspect"
	"github.com/rcook/rust-tool-action/internal/platform"
	"github.com/rcook/rust-tool-action/internal/testutil"
	"github.com/rcook/rust-tool-action/internal/transaction"
	"github.com/rcook/rust-tool-action/internal/tsa"
)

var fixedNow = time.Date(2025, 1, 16, 14, 30, 22, 0, time.UTC)

func testCodeSign() config.CodeSign {
	return config.Default().CodeSign
}

// failingStore fails every Remove with removeErr when it is set.
type failingStore struct {
	certstore.Store
	removeErr error
}

func (f *failingStore) Remove(ctx context.Context, thumbprint string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.Store.Remove(ctx, thumbprint)
}

func assertStoreEmpty(t *testing.T, store certstore.Store) {
	t.Helper()
	entries, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list store: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty store, found %d entries", len(entries))
	}
}

func createContainer(t *testing.T, dir string) *CertResult {
	t.Helper()
	svc := NewCertService(certstore.NewMemoryStore(), "", TestClock{FixedTime: time.Now()}, nil)
	res, err := svc.Execute(context.Background(), CertRequest{
		Destination: filepath.Join(dir, "codesign.crt"),
		CodeSign:    testCodeSign(),
	})
	if err != nil {
		t.Fatalf("create container: %v", err)
	}
	return res
}

func TestCertService_Execute(t *testing.T) {
	dir := t.TempDir()
	store := certstore.NewMemoryStore()
	svc := NewCertService(store, "", TestClock{FixedTime: fixedNow}, nil)

	res, err := svc.Execute(context.Background(), CertRequest{
		Destination: filepath.Join(dir, "codesign.crt"),
		CodeSign:    testCodeSign(),
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if res.Subject != credential.DefaultSubject {
		t.Errorf("expected subject %q, got %q", credential.DefaultSubject, res.Subject)
	}
	if want := fixedNow.Add(365 * 24 * time.Hour); !res.NotAfter.Equal(want) {
		t.Errorf("expected NotAfter %v, got %v", want, res.NotAfter)
	}
	if res.Passphrase != filepath.Join(dir, "codesign.crtpass") {
		t.Errorf("unexpected passphrase path %q", res.Passphrase)
	}

	info, err := os.Stat(res.Passphrase)
	if err != nil {
		t.Fatalf("stat passphrase: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected passphrase mode 0600, got %04o", info.Mode().Perm())
	}

	src, err := credential.FileSource(credential.Paths{Certificate: res.Certificate, Passphrase: res.Passphrase}, "")
	if err != nil {
		t.Fatalf("load container: %v", err)
	}
	id, err := src.Open()
	if err != nil {
		t.Fatalf("open container: %v", err)
	}
	if id.Thumbprint() != res.Thumbprint {
		t.Errorf("container thumbprint %s does not match result %s", id.Thumbprint(), res.Thumbprint)
	}

	assertStoreEmpty(t, store)
}

func TestCertService_ExistingDestination(t *testing.T) {
	dir := t.TempDir()
	first := createContainer(t, dir)
	before, err := os.ReadFile(first.Certificate)
	if err != nil {
		t.Fatal(err)
	}

	store := certstore.NewMemoryStore()
	svc := NewCertService(store, "", nil, nil)
	_, err = svc.Execute(context.Background(), CertRequest{
		Destination: first.Certificate,
		CodeSign:    testCodeSign(),
	})
	if !errors.Is(err, credential.ErrDestinationExists) {
		t.Fatalf("expected ErrDestinationExists, got %v", err)
	}

	after, err := os.ReadFile(first.Certificate)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("existing container was modified")
	}
	assertStoreEmpty(t, store)
}

func TestCertService_ExistingSidecarOnly(t *testing.T) {
	dir := t.TempDir()
	sidecar := filepath.Join(dir, "codesign.crtpass")
	if err := os.WriteFile(sidecar, []byte("keep me"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := NewCertService(certstore.NewMemoryStore(), "", nil, nil).Execute(context.Background(), CertRequest{
		Destination: filepath.Join(dir, "codesign.crt"),
		CodeSign:    testCodeSign(),
	})
	if !errors.Is(err, credential.ErrDestinationExists) {
		t.Fatalf("expected ErrDestinationExists, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "codesign.crt")); !os.IsNotExist(err) {
		t.Error("certificate must not be written when the sidecar exists")
	}
}

func TestCertService_Force(t *testing.T) {
	dir := t.TempDir()
	first := createContainer(t, dir)

	store := certstore.NewMemoryStore()
	second, err := NewCertService(store, "", nil, nil).Execute(context.Background(), CertRequest{
		Destination: first.Certificate,
		Force:       true,
		CodeSign:    testCodeSign(),
	})
	if err != nil {
		t.Fatalf("forced Execute failed: %v", err)
	}
	if second.Thumbprint == first.Thumbprint {
		t.Error("forced overwrite must produce a new identity")
	}

	src, err := credential.FileSource(credential.Paths{Certificate: second.Certificate, Passphrase: second.Passphrase}, "")
	if err != nil {
		t.Fatal(err)
	}
	id, err := src.Open()
	if err != nil {
		t.Fatalf("overwritten container does not open: %v", err)
	}
	if id.Thumbprint() != second.Thumbprint {
		t.Error("overwritten container holds the wrong identity")
	}
	assertStoreEmpty(t, store)
}

func TestCertService_BadExtension(t *testing.T) {
	_, err := NewCertService(certstore.NewMemoryStore(), "", nil, nil).Execute(context.Background(), CertRequest{
		Destination: filepath.Join(t.TempDir(), "codesign.pfx"),
		CodeSign:    testCodeSign(),
	})
	if !errors.Is(err, credential.ErrBadExtension) {
		t.Fatalf("expected ErrBadExtension, got %v", err)
	}
}

func TestCertService_PurgesOnWriteFailure(t *testing.T) {
	store := certstore.NewMemoryStore()
	missingDir := filepath.Join(t.TempDir(), "does", "not", "exist")

	_, err := NewCertService(store, "", nil, nil).Execute(context.Background(), CertRequest{
		Destination: filepath.Join(missingDir, "codesign.crt"),
		CodeSign:    testCodeSign(),
	})
	if err == nil {
		t.Fatal("expected write failure")
	}
	entries, err := certstore.FindBySubject(context.Background(), store, credential.DefaultSubject)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("store still holds %d entries for the generated subject", len(entries))
	}
}

func TestCertService_ReleaseFailureIsReported(t *testing.T) {
	store := &failingStore{Store: certstore.NewMemoryStore(), removeErr: certstore.ErrStoreUnavailable}

	res, err := NewCertService(store, "", nil, nil).Execute(context.Background(), CertRequest{
		Destination: filepath.Join(t.TempDir(), "codesign.crt"),
		CodeSign:    testCodeSign(),
	})
	if !errors.Is(err, certstore.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if res != nil {
		t.Error("expected no result when the purge failed")
	}
}

func TestCertService_DirStoreWithJournal(t *testing.T) {
	storeDir := t.TempDir()
	journalDir := filepath.Join(storeDir, "journal")
	store, err := OpenStore(config.Store{Backend: certstore.BackendDir, Dir: storeDir})
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewCertService(store, journalDir, nil, nil).Execute(context.Background(), CertRequest{
		Destination: filepath.Join(t.TempDir(), "codesign.crt"),
		CodeSign:    testCodeSign(),
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	assertStoreEmpty(t, store)

	journals, loadErrs := transaction.LoadAll(journalDir)
	if len(loadErrs) != 0 {
		t.Fatalf("load journals: %v", loadErrs)
	}
	if len(journals) != 0 {
		t.Errorf("expected no journals after a clean run, found %d", len(journals))
	}
}

func TestSignService_SignThenVerify(t *testing.T) {
	dir := t.TempDir()
	cert := createContainer(t, dir)
	exe := testutil.WritePE(t, dir, "tool.exe")
	store := certstore.NewMemoryStore()

	svc := NewSignService(store, "", WithTimestamper(testutil.NewTSA(t)))
	res, err := svc.Execute(context.Background(), SignRequest{
		Executable:  exe,
		Certificate: cert.Certificate,
		CodeSign:    testCodeSign(),
		Verify:      true,
	})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if res.Thumbprint != cert.Thumbprint {
		t.Errorf("signed with %s, want %s", res.Thumbprint, cert.Thumbprint)
	}
	if !res.Timestamped {
		t.Error("expected a timestamped signature")
	}
	assertStoreEmpty(t, store)

	report, err := NewVerifyService().Execute(context.Background(), VerifyRequest{Executable: exe})
	if err != nil {
		t.Fatalf("verify failed: %v (problems %v)", err, report.Problems)
	}
	if !report.Valid || report.Chain != authenticode.ChainUntrustedRoot {
		t.Errorf("unexpected report: valid=%v chain=%s", report.Valid, report.Chain)
	}
	if report.Timestamp == nil {
		t.Error("expected timestamp in report")
	}
}

func TestSignService_EnvironmentBundle(t *testing.T) {
	dir := t.TempDir()
	cert := createContainer(t, dir)
	text, err := os.ReadFile(cert.Certificate)
	if err != nil {
		t.Fatal(err)
	}
	pass, err := os.ReadFile(cert.Passphrase)
	if err != nil {
		t.Fatal(err)
	}
	exe := testutil.WritePE(t, dir, "tool.exe")

	environ := map[string]string{
		credential.DefaultEnvPrefix + "CRT":     string(text),
		credential.DefaultEnvPrefix + "CRTPASS": string(pass),
	}
	res, err := NewSignService(certstore.NewMemoryStore(), "", WithEnviron(environ)).Execute(context.Background(), SignRequest{
		Executable: exe,
		CodeSign:   testCodeSign(),
		Verify:     true,
	})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if !strings.HasPrefix(res.Source, "env:") {
		t.Errorf("expected env source, got %q", res.Source)
	}
}

func TestSignService_NoCredentials(t *testing.T) {
	exe := testutil.WritePE(t, t.TempDir(), "tool.exe")
	_, err := NewSignService(certstore.NewMemoryStore(), "", WithEnviron(map[string]string{})).Execute(context.Background(), SignRequest{
		Executable: exe,
		CodeSign:   testCodeSign(),
	})
	if !errors.Is(err, credential.ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestSignService_WrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	cert := createContainer(t, dir)
	exe := testutil.WritePE(t, dir, "tool.exe")
	before, err := os.ReadFile(exe)
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewSignService(certstore.NewMemoryStore(), "").Execute(context.Background(), SignRequest{
		Executable:  exe,
		Certificate: cert.Certificate,
		Passphrase:  credential.Passphrase("definitely-wrong"),
		CodeSign:    testCodeSign(),
	})
	if !errors.Is(err, credential.ErrWrongPassphrase) {
		t.Fatalf("expected ErrWrongPassphrase, got %v", err)
	}
	if errors.Is(err, credential.ErrContainerNotFound) {
		t.Error("wrong passphrase must be distinct from a missing container")
	}

	after, err := os.ReadFile(exe)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("executable was modified")
	}
}

func TestSignService_MissingContainer(t *testing.T) {
	dir := t.TempDir()
	exe := testutil.WritePE(t, dir, "tool.exe")

	_, err := NewSignService(certstore.NewMemoryStore(), "").Execute(context.Background(), SignRequest{
		Executable:  exe,
		Certificate: filepath.Join(dir, "missing.crt"),
		CodeSign:    testCodeSign(),
	})
	if !errors.Is(err, credential.ErrContainerNotFound) {
		t.Fatalf("expected ErrContainerNotFound, got %v", err)
	}
}

func TestSignService_MissingExecutable(t *testing.T) {
	dir := t.TempDir()
	cert := createContainer(t, dir)

	_, err := NewSignService(certstore.NewMemoryStore(), "").Execute(context.Background(), SignRequest{
		Executable:  filepath.Join(dir, "missing.exe"),
		Certificate: cert.Certificate,
		CodeSign:    testCodeSign(),
	})
	if !errors.Is(err, ErrExecutableNotFound) {
		t.Fatalf("expected ErrExecutableNotFound, got %v", err)
	}
}

func TestSignService_TimestampUnavailable(t *testing.T) {
	dir := t.TempDir()
	cert := createContainer(t, dir)
	exe := testutil.WritePE(t, dir, "tool.exe")
	before, err := os.ReadFile(exe)
	if err != nil {
		t.Fatal(err)
	}

	authority := testutil.NewTSA(t)
	authority.Status = 503
	srv := authority.Server(t)
	client, err := tsa.New(srv.URL, tsa.WithRetries(1), tsa.WithInitialInterval(time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	store := certstore.NewMemoryStore()
	_, err = NewSignService(store, "", WithTimestamper(client)).Execute(context.Background(), SignRequest{
		Executable:  exe,
		Certificate: cert.Certificate,
		CodeSign:    testCodeSign(),
	})
	if !errors.Is(err, tsa.ErrUnavailable) {
		t.Fatalf("expected tsa.ErrUnavailable, got %v", err)
	}
	if !tsa.IsTransient(err) {
		t.Error("expected a transient error")
	}

	after, err := os.ReadFile(exe)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("executable was modified by a failed signature")
	}
	assertStoreEmpty(t, store)
}

func TestSignService_RecoversLeftoverEntries(t *testing.T) {
	dir := t.TempDir()
	storeDir := filepath.Join(dir, "store")
	journalDir := filepath.Join(storeDir, "journal")
	store, err := OpenStore(config.Store{Backend: certstore.BackendDir, Dir: storeDir})
	if err != nil {
		t.Fatal(err)
	}

	// Simulate a crashed run: staged but never released.
	orphan, err := credential.Generate(credential.GenerateOptions{Subject: "orphan"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := certstore.Stage(context.Background(), store, orphan, certstore.StageOptions{JournalDir: journalDir}); err != nil {
		t.Fatal(err)
	}

	cert := createContainer(t, dir)
	exe := testutil.WritePE(t, dir, "tool.exe")
	if _, err := NewSignService(store, journalDir).Execute(context.Background(), SignRequest{
		Executable:  exe,
		Certificate: cert.Certificate,
		CodeSign:    testCodeSign(),
	}); err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	assertStoreEmpty(t, store)
}

func TestVerifyService_Unsigned(t *testing.T) {
	exe := testutil.WritePE(t, t.TempDir(), "tool.exe")

	report, err := NewVerifyService().Execute(context.Background(), VerifyRequest{Executable: exe})
	if !errors.Is(err, authenticode.ErrNotSigned) {
		t.Fatalf("expected ErrNotSigned, got %v", err)
	}
	if report == nil || report.Signed || report.Valid {
		t.Errorf("unexpected report for unsigned input: %+v", report)
	}
}

func TestVerifyService_NotExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	report, err := NewVerifyService().Execute(context.Background(), VerifyRequest{Executable: path})
	if !errors.Is(err, authenticode.ErrNotExecutable) {
		t.Fatalf("expected ErrNotExecutable, got %v", err)
	}
	if report.Valid {
		t.Error("text file reported valid")
	}
}

func TestVerifyService_TrustedRoots(t *testing.T) {
	dir := t.TempDir()
	cert := createContainer(t, dir)
	exe := testutil.WritePE(t, dir, "tool.exe")
	if _, err := NewSignService(certstore.NewMemoryStore(), "").Execute(context.Background(), SignRequest{
		Executable:  exe,
		Certificate: cert.Certificate,
		CodeSign:    testCodeSign(),
	}); err != nil {
		t.Fatal(err)
	}

	src, err := credential.FileSource(credential.Paths{Certificate: cert.Certificate, Passphrase: cert.Passphrase}, "")
	if err != nil {
		t.Fatal(err)
	}
	id, err := src.Open()
	if err != nil {
		t.Fatal(err)
	}
	rootsFile := filepath.Join(dir, "roots.pem")
	pemData := "-----BEGIN CERTIFICATE-----\n" + base64.StdEncoding.EncodeToString(id.Certificate.Raw) + "\n-----END CERTIFICATE-----\n"
	if err := os.WriteFile(rootsFile, []byte(pemData), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := NewVerifyService().Execute(context.Background(), VerifyRequest{Executable: exe, RootsFile: rootsFile})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if report.Chain != authenticode.ChainTrusted {
		t.Errorf("expected trusted chain, got %s", report.Chain)
	}
}

func TestLoadRoots_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roots.pem")
	if err := os.WriteFile(path, []byte("nothing here"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRoots(path); !errors.Is(err, ErrNoRoots) {
		t.Fatalf("expected ErrNoRoots, got %v", err)
	}
}

func TestInfoService_IsolatesTargets(t *testing.T) {
	dir := t.TempDir()
	exe := testutil.WritePE(t, dir, "tool.exe")
	missing := filepath.Join(dir, "missing.exe")
	notes := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notes, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := NewInfoService(inspect.New(inspect.Options{}), nil, nil)
	res, err := svc.Execute(context.Background(), InfoRequest{Targets: []string{exe, missing, notes}})
	if err == nil {
		t.Fatal("expected aggregated failure")
	}
	if len(res.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res.Results))
	}
	if !res.Results[0].OK() || res.Results[1].OK() || !res.Results[2].OK() {
		t.Errorf("unexpected outcomes: %v %v %v", res.Results[0].OK(), res.Results[1].OK(), res.Results[2].OK())
	}
}

func TestInfoService_Environment(t *testing.T) {
	host := &platform.Info{OS: "linux", Arch: "amd64", Platform: "ubuntu"}
	svc := NewInfoService(inspect.New(inspect.Options{}), platform.StaticDetector{Info: host}, nil)

	cfg := config.Default()
	res, err := svc.Execute(context.Background(), InfoRequest{Args: []string{"sign", "info"}, Config: cfg, Version: "v1.2.3"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	env := res.Environment
	if env == nil {
		t.Fatal("expected environment report")
	}
	if env.Host != host {
		t.Error("expected detected host")
	}
	if env.TimestampURL != cfg.CodeSign.TimestampURL || env.StoreBackend != certstore.BackendMemory {
		t.Errorf("unexpected config echo: %+v", env)
	}
	if env.WorkingDir == "" {
		t.Error("expected working directory")
	}
}

func TestInfoService_EnvironmentDetectorError(t *testing.T) {
	svc := NewInfoService(inspect.New(inspect.Options{}), platform.StaticDetector{Err: errors.New("no host")}, nil)
	res, err := svc.Execute(context.Background(), InfoRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Environment.HostError != "no host" {
		t.Errorf("expected host error, got %q", res.Environment.HostError)
	}
}

func TestStoreService_ListAndPurge(t *testing.T) {
	storeDir := t.TempDir()
	journalDir := filepath.Join(storeDir, "journal")
	store, err := OpenStore(config.Store{Backend: certstore.BackendDir, Dir: storeDir})
	if err != nil {
		t.Fatal(err)
	}
	orphan, err := credential.Generate(credential.GenerateOptions{Subject: "orphan"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := certstore.Stage(context.Background(), store, orphan, certstore.StageOptions{JournalDir: journalDir}); err != nil {
		t.Fatal(err)
	}

	svc := NewStoreService(store, journalDir, nil)
	entries, err := svc.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Subject != "orphan" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	res, err := svc.Purge(context.Background())
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if res.Journals != 1 || len(res.Purged) != 1 || res.Purged[0] != orphan.Thumbprint() {
		t.Errorf("unexpected purge result: %+v", res)
	}
	assertStoreEmpty(t, store)
}

func TestStoreService_PurgeWithoutJournal(t *testing.T) {
	svc := NewStoreService(certstore.NewMemoryStore(), "", nil)
	if _, err := svc.Purge(context.Background()); err == nil {
		t.Fatal("expected error without a journal directory")
	}
}
