package inspect

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcook/rust-tool-action/internal/authenticode"
	"github.com/rcook/rust-tool-action/internal/credential"
	"github.com/rcook/rust-tool-action/internal/platform"
	"github.com/rcook/rust-tool-action/internal/release"
	"github.com/rcook/rust-tool-action/internal/testutil"
)

func newIdentity(t *testing.T) *credential.Identity {
	t.Helper()
	id, err := credential.Generate(credential.GenerateOptions{})
	require.NoError(t, err)
	return id
}

func writeContainer(t *testing.T, dir string, id *credential.Identity) credential.Paths {
	t.Helper()
	paths, err := credential.NewPaths(filepath.Join(dir, "codesign.crt"), "", "")
	require.NoError(t, err)
	pass := credential.NewPassphrase()
	pfx, err := credential.Encode(id, pass)
	require.NoError(t, err)
	require.NoError(t, credential.WriteContainer(paths, pfx, pass, false))
	return paths
}

func mustGet(t *testing.T, r *Result, name string) string {
	t.Helper()
	v, ok := r.Get(name)
	require.True(t, ok, "field %q missing from %+v", name, r.Fields)
	return v
}

func TestInspectAll_IsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	good := testutil.WritePE(t, dir, "good.exe")
	bad := filepath.Join(dir, "broken.exe")
	require.NoError(t, os.WriteFile(bad, []byte("MZ but nothing else"), 0o644))
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("hello\n"), 0o644))

	results, err := New(Options{}).InspectAll(context.Background(), []string{good, bad, other})

	require.Error(t, err)
	assert.Contains(t, err.Error(), bad)
	require.Len(t, results, 3)
	assert.True(t, results[0].OK())
	assert.Equal(t, KindExecutable, results[0].Kind)
	assert.False(t, results[1].OK())
	assert.NotEmpty(t, results[1].Error)
	assert.True(t, results[2].OK())
	assert.Equal(t, KindFile, results[2].Kind)
}

func TestInspectAll_AllSucceed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	results, err := New(Options{}).InspectAll(context.Background(), []string{path})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestInspect_MissingAndDirectory(t *testing.T) {
	dir := t.TempDir()
	i := New(Options{})

	r := i.Inspect(context.Background(), filepath.Join(dir, "nope.exe"))
	assert.False(t, r.OK())
	assert.Contains(t, r.Error, "no such file")

	r = i.Inspect(context.Background(), dir)
	assert.False(t, r.OK())
	assert.Contains(t, r.Error, "directory")
}

func TestInspect_CancelledContext(t *testing.T) {
	path := testutil.WritePE(t, t.TempDir(), "tool.exe")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(Options{}).Inspect(ctx, path)
	assert.ErrorIs(t, r.Err, context.Canceled)
}

func TestInspect_UnsignedExecutable(t *testing.T) {
	path := testutil.WritePE(t, t.TempDir(), "tool.exe")

	r := New(Options{}).Inspect(context.Background(), path)
	require.True(t, r.OK(), r.Error)
	assert.Equal(t, KindExecutable, r.Kind)
	assert.Equal(t, "PE32+", mustGet(t, r, "format"))
	assert.Equal(t, "none", mustGet(t, r, "signature"))
}

func TestInspect_SignedExecutable(t *testing.T) {
	ctx := context.Background()
	id := newIdentity(t)
	path := testutil.WritePE(t, t.TempDir(), "tool.exe")
	require.NoError(t, authenticode.Sign(ctx, path, id, authenticode.Options{Timestamper: testutil.NewTSA(t)}))

	r := New(Options{}).Inspect(ctx, path)
	require.True(t, r.OK(), r.Error)
	assert.Equal(t, "valid", mustGet(t, r, "signature"))
	assert.Equal(t, id.Subject(), mustGet(t, r, "signer"))
	assert.Equal(t, id.Thumbprint(), mustGet(t, r, "thumbprint"))
	assert.Equal(t, string(authenticode.ChainUntrustedRoot), mustGet(t, r, "chain"))
	assert.NotEqual(t, "none", mustGet(t, r, "timestamp"))
}

func TestInspect_SignedExecutableTrustedRoot(t *testing.T) {
	ctx := context.Background()
	id := newIdentity(t)
	path := testutil.WritePE(t, t.TempDir(), "tool.exe")
	require.NoError(t, authenticode.Sign(ctx, path, id, authenticode.Options{}))

	roots := x509.NewCertPool()
	roots.AddCert(id.Certificate)
	r := New(Options{Roots: roots}).Inspect(ctx, path)
	require.True(t, r.OK(), r.Error)
	assert.Equal(t, string(authenticode.ChainTrusted), mustGet(t, r, "chain"))
	assert.Equal(t, "none", mustGet(t, r, "timestamp"))
}

func TestInspect_TamperedExecutable(t *testing.T) {
	ctx := context.Background()
	path := testutil.WritePE(t, t.TempDir(), "tool.exe")
	require.NoError(t, authenticode.Sign(ctx, path, newIdentity(t), authenticode.Options{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0x300] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r := New(Options{}).Inspect(ctx, path)
	require.True(t, r.OK(), r.Error)
	assert.True(t, strings.HasPrefix(mustGet(t, r, "signature"), "invalid"))
}

func TestInspect_Container(t *testing.T) {
	dir := t.TempDir()
	id := newIdentity(t)
	paths := writeContainer(t, dir, id)

	r := New(Options{}).Inspect(context.Background(), paths.Certificate)
	require.True(t, r.OK(), r.Error)
	assert.Equal(t, KindContainer, r.Kind)
	assert.Equal(t, "base64", mustGet(t, r, "encoding"))
	assert.Contains(t, mustGet(t, r, "state"), "unlocked")
	assert.Equal(t, id.Thumbprint(), mustGet(t, r, "thumbprint"))
	assert.Equal(t, "yes", mustGet(t, r, "code signing"))
	assert.Equal(t, "yes", mustGet(t, r, "self-signed"))

	pass, err := os.ReadFile(paths.Passphrase)
	require.NoError(t, err)
	for _, f := range r.Fields {
		assert.NotContains(t, f.Value, string(pass))
	}
}

func TestInspect_ContainerLocked(t *testing.T) {
	dir := t.TempDir()
	paths := writeContainer(t, dir, newIdentity(t))
	require.NoError(t, os.Remove(paths.Passphrase))

	r := New(Options{}).Inspect(context.Background(), paths.Certificate)
	require.True(t, r.OK(), r.Error)
	assert.Contains(t, mustGet(t, r, "state"), "locked")
	_, ok := r.Get("thumbprint")
	assert.False(t, ok)
}

func TestInspect_ContainerWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	paths := writeContainer(t, dir, newIdentity(t))
	require.NoError(t, os.WriteFile(paths.Passphrase, []byte("not-the-passphrase"), 0o600))

	r := New(Options{}).Inspect(context.Background(), paths.Certificate)
	assert.ErrorIs(t, r.Err, credential.ErrWrongPassphrase)
}

func TestInspect_ContainerLoosePermissions(t *testing.T) {
	dir := t.TempDir()
	paths := writeContainer(t, dir, newIdentity(t))
	require.NoError(t, os.Chmod(paths.Passphrase, 0o644))

	r := New(Options{}).Inspect(context.Background(), paths.Certificate)
	require.True(t, r.OK(), r.Error)
	assert.Contains(t, mustGet(t, r, "warning"), "readable by others")
}

func TestInspect_PEMCertificate(t *testing.T) {
	id := newIdentity(t)
	path := filepath.Join(t.TempDir(), "cert.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: id.Certificate.Raw})
	require.NoError(t, os.WriteFile(path, data, 0o644))

	future := id.Certificate.NotAfter.Add(time.Hour)
	r := New(Options{Now: func() time.Time { return future }}).Inspect(context.Background(), path)
	require.True(t, r.OK(), r.Error)
	assert.Equal(t, KindCertificate, r.Kind)
	assert.Equal(t, "expired", mustGet(t, r, "status"))
	assert.Equal(t, credential.DefaultDNSName, mustGet(t, r, "dns names"))
}

func TestInspect_DERCertificate(t *testing.T) {
	id := newIdentity(t)
	path := filepath.Join(t.TempDir(), "cert.cer")
	require.NoError(t, os.WriteFile(path, id.Certificate.Raw, 0o644))

	r := New(Options{}).Inspect(context.Background(), path)
	require.True(t, r.OK(), r.Error)
	assert.Equal(t, KindCertificate, r.Kind)
	assert.Equal(t, "current", mustGet(t, r, "status"))
}

func TestInspect_OpenPGP(t *testing.T) {
	dir := t.TempDir()
	entity, err := openpgp.NewEntity("Release Bot", "", "release@example.com", &packet.Config{Algorithm: packet.PubKeyAlgoEdDSA})
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.Serialize(w))
	require.NoError(t, w.Close())
	keyPath := filepath.Join(dir, "release.asc")
	require.NoError(t, os.WriteFile(keyPath, buf.Bytes(), 0o644))

	artifact := filepath.Join(dir, "tool.tar.gz.txt")
	require.NoError(t, os.WriteFile(artifact, []byte("payload"), 0o644))
	sigPath, err := release.DetachSign(artifact, entity)
	require.NoError(t, err)

	i := New(Options{})

	r := i.Inspect(context.Background(), keyPath)
	require.True(t, r.OK(), r.Error)
	assert.Equal(t, KindOpenPGPKey, r.Kind)
	assert.Equal(t, entity.PrimaryKey.KeyIdString(), mustGet(t, r, "key id"))
	assert.Contains(t, mustGet(t, r, "identities"), "release@example.com")
	assert.Equal(t, "no", mustGet(t, r, "secret key"))

	r = i.Inspect(context.Background(), sigPath)
	require.True(t, r.OK(), r.Error)
	assert.Equal(t, KindOpenPGPSignature, r.Kind)
	assert.Equal(t, "EdDSA", mustGet(t, r, "algorithm"))
}

func TestInspect_SigstoreBundle(t *testing.T) {
	tsa := testutil.NewTSA(t)
	msg := []byte("artifact")
	digest := sha256.Sum256(msg)
	token, err := tsa.Timestamp(context.Background(), []byte("signature"))
	require.NoError(t, err)

	doc := map[string]any{
		"mediaType": "application/vnd.dev.sigstore.bundle.v0.3+json",
		"verificationMaterial": map[string]any{
			"publicKey": map[string]any{"hint": "release-key"},
			"timestampVerificationData": map[string]any{
				"rfc3161Timestamps": []any{
					map[string]any{"signedTimestamp": base64.StdEncoding.EncodeToString(token)},
				},
			},
		},
		"messageSignature": map[string]any{
			"messageDigest": map[string]any{
				"algorithm": "SHA2_256",
				"digest":    base64.StdEncoding.EncodeToString(digest[:]),
			},
			"signature": base64.StdEncoding.EncodeToString([]byte("signature")),
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "artifact.sigstore.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r := New(Options{}).Inspect(context.Background(), path)
	require.True(t, r.OK(), r.Error)
	assert.Equal(t, KindSigstoreBundle, r.Kind)
	assert.Equal(t, "release-key", mustGet(t, r, "key hint"))
	assert.Equal(t, "0", mustGet(t, r, "tlog entries"))
	assert.Equal(t, "1", mustGet(t, r, "rfc3161 timestamps"))
	assert.Contains(t, mustGet(t, r, "content"), "SHA2_256")
}

func TestInspect_SigstoreBundleMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.sigstore.json")
	body := `{"mediaType": "application/vnd.dev.sigstore.bundle.v0.3+json", "verificationMaterial": 7}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	r := New(Options{}).Inspect(context.Background(), path)
	assert.Equal(t, KindSigstoreBundle, r.Kind)
	assert.False(t, r.OK())
}

func TestInspect_ArchiveAndChecksums(t *testing.T) {
	dir := t.TempDir()
	exe := testutil.WritePE(t, dir, "tool.exe")
	archive := filepath.Join(dir, "tool-v1.0.0-x86_64-pc-windows-msvc.zip")
	require.NoError(t, release.CreateArchive(archive, platform.ArchiveZip, []release.ArchiveFile{
		{Source: exe, Name: "tool.exe", Mode: 0o755},
	}, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	sumPath, err := release.WriteChecksumFile(archive)
	require.NoError(t, err)

	i := New(Options{})

	r := i.Inspect(context.Background(), archive)
	require.True(t, r.OK(), r.Error)
	assert.Equal(t, KindArchive, r.Kind)
	assert.Equal(t, "1", mustGet(t, r, "entries"))
	assert.Equal(t, "tool.exe", mustGet(t, r, "entry"))
	assert.Equal(t, "ok", mustGet(t, r, "checksum"))

	r = i.Inspect(context.Background(), sumPath)
	require.True(t, r.OK(), r.Error)
	assert.Equal(t, KindChecksums, r.Kind)
	assert.Equal(t, "ok", mustGet(t, r, filepath.Base(archive)))

	f, err := os.OpenFile(archive, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte("junk"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r = i.Inspect(context.Background(), sumPath)
	require.True(t, r.OK(), r.Error)
	assert.Equal(t, "MISMATCH", mustGet(t, r, filepath.Base(archive)))

	require.NoError(t, os.Remove(archive))
	r = i.Inspect(context.Background(), sumPath)
	require.True(t, r.OK(), r.Error)
	assert.Equal(t, "missing", mustGet(t, r, filepath.Base(archive)))
}

func TestInspect_PlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "README")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o640))

	r := New(Options{}).Inspect(context.Background(), path)
	require.True(t, r.OK(), r.Error)
	assert.Equal(t, KindFile, r.Kind)
	assert.Equal(t, "3 bytes", mustGet(t, r, "size"))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", mustGet(t, r, "sha256"))
}

func TestSniff(t *testing.T) {
	i := New(Options{})
	tests := []struct {
		name string
		head []byte
		want Kind
	}{
		{"tool.exe", []byte("MZ\x90\x00"), KindExecutable},
		{"a.tar.gz", []byte{0x1f, 0x8b, 0x08}, KindArchive},
		{"a.tar.gz", []byte("not gzip"), KindFile},
		{"a.zip", []byte("PK\x03\x04"), KindArchive},
		{"cert.pem", []byte("-----BEGIN CERTIFICATE-----\n"), KindCertificate},
		{"a.asc", []byte("-----BEGIN PGP SIGNATURE-----\n"), KindOpenPGPSignature},
		{"key.asc", []byte("-----BEGIN PGP PUBLIC KEY BLOCK-----\n"), KindOpenPGPKey},
		{"codesign.crt", []byte("MIIK"), KindContainer},
		{"id.p12", []byte{0x30, 0x82}, KindContainer},
		{"b.json", []byte(`{"mediaType":"application/vnd.dev.sigstore.bundle.v0.3+json"}`), KindSigstoreBundle},
		{"other.json", []byte(`{"mediaType":"text/plain"}`), KindFile},
		{"a.zip.sha256", []byte("abc  a.zip\n"), KindChecksums},
		{"SHA256SUMS", []byte("abc  a.zip\n"), KindChecksums},
		{"a.sig", []byte{0x88}, KindOpenPGPSignature},
		{"c.der", []byte{0x30, 0x82}, KindCertificate},
		{"c.der", []byte("text"), KindFile},
		{"notes.txt", []byte("hello"), KindFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, i.sniff(tt.name, tt.head))
		})
	}
}
