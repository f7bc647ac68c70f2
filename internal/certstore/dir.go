package certstore

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rcook/rust-tool-action/internal/credential"
	"github.com/rcook/rust-tool-action/internal/transaction"
)

const entryExt = ".pem"

// DirStore keeps one PEM file per entry in a directory. Mutations hold the
// directory lock from the transaction package.
type DirStore struct {
	dir string
	now func() time.Time
}

// NewDirStore opens (creating if needed) a store rooted at dir.
func NewDirStore(dir string) (*DirStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: no directory configured", ErrStoreUnavailable)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrStoreUnavailable, dir)
	}
	return &DirStore{dir: dir, now: time.Now}, nil
}

func (d *DirStore) Name() string { return BackendDir + ":" + d.dir }

// Dir returns the store directory.
func (d *DirStore) Dir() string { return d.dir }

func (d *DirStore) entryPath(thumbprint string) string {
	return filepath.Join(d.dir, thumbprint+entryExt)
}

func (d *DirStore) lock(ctx context.Context) (*transaction.Lock, error) {
	lock, err := transaction.WaitLock(ctx, d.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return lock, nil
}

func (d *DirStore) Add(ctx context.Context, id *credential.Identity) (*Entry, error) {
	if err := validIdentity(id); err != nil {
		return nil, err
	}

	data, err := encodeEntry(id)
	if err != nil {
		return nil, err
	}

	lock, err := d.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	e := newEntry(id, d.now())
	path := d.entryPath(e.Thumbprint)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, e.Thumbprint)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: write entry: %v", ErrStoreUnavailable, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: close entry: %v", ErrStoreUnavailable, err)
	}

	return e, nil
}

func (d *DirStore) Get(ctx context.Context, thumbprint string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.read(d.entryPath(thumbprint))
}

func (d *DirStore) Remove(ctx context.Context, thumbprint string) error {
	lock, err := d.lock(ctx)
	if err != nil {
		return err
	}
	defer lock.Release()

	if err := os.Remove(d.entryPath(thumbprint)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, thumbprint)
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (d *DirStore) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	des, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var out []Entry
	for _, de := range des {
		if de.IsDir() || !strings.HasSuffix(de.Name(), entryExt) {
			continue
		}
		e, err := d.read(filepath.Join(d.dir, de.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	sortEntries(out)
	return out, nil
}

func (d *DirStore) read(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSuffix(filepath.Base(path), entryExt))
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	id, err := decodeEntry(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	added := d.now()
	if info, err := os.Stat(path); err == nil {
		added = info.ModTime()
	}
	return newEntry(id, added), nil
}

// encodeEntry writes the leaf, its key, then any chain certificates.
func encodeEntry(id *credential.Identity) ([]byte, error) {
	keyDER, err := x509.MarshalPKCS8PrivateKey(id.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}

	var buf bytes.Buffer
	pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: id.Certificate.Raw})
	pem.Encode(&buf, &pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	for _, c := range id.Chain {
		pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})
	}
	return buf.Bytes(), nil
}

func decodeEntry(data []byte) (*credential.Identity, error) {
	id := &credential.Identity{}
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse certificate: %w", err)
			}
			if id.Certificate == nil {
				id.Certificate = cert
			} else {
				id.Chain = append(id.Chain, cert)
			}
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse private key: %w", err)
			}
			signer, ok := key.(crypto.Signer)
			if !ok {
				return nil, fmt.Errorf("private key of type %T cannot sign", key)
			}
			id.PrivateKey = signer
		}
	}

	if id.Certificate == nil || id.PrivateKey == nil {
		return nil, errors.New("store entry is missing its certificate or key")
	}
	return id, nil
}
