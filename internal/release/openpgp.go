package release

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// SignatureExt is appended to an artifact name to form its detached
// signature file.
const SignatureExt = ".asc"

// LoadKeyring reads an OpenPGP keyring, armored or binary.
func LoadKeyring(path string) (openpgp.EntityList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}

	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}
	if len(keyring) == 0 {
		return nil, errors.New("keyring is empty")
	}
	return keyring, nil
}

// LoadSigningKey reads the first private key in path, decrypting it with
// passphrase when it is protected.
func LoadSigningKey(path string, passphrase []byte) (*openpgp.Entity, error) {
	keyring, err := LoadKeyring(path)
	if err != nil {
		return nil, err
	}
	for _, entity := range keyring {
		if entity.PrivateKey == nil {
			continue
		}
		if entity.PrivateKey.Encrypted {
			if len(passphrase) == 0 {
				return nil, fmt.Errorf("signing key %X is passphrase protected", entity.PrimaryKey.KeyId)
			}
			if err := entity.DecryptPrivateKeys(passphrase); err != nil {
				return nil, fmt.Errorf("decrypt signing key: %w", err)
			}
		}
		return entity, nil
	}
	return nil, fmt.Errorf("%s contains no private key", path)
}

// DetachSign writes an armored detached signature of artifact to
// artifact+SignatureExt and returns that path.
func DetachSign(artifact string, signer *openpgp.Entity) (string, error) {
	in, err := os.Open(artifact)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", artifact, err)
	}
	defer in.Close()

	var sig bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&sig, signer, in, nil); err != nil {
		return "", fmt.Errorf("sign %s: %w", artifact, err)
	}
	path := artifact + SignatureExt
	if err := writeFileAtomic(path, sig.Bytes(), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// VerifyDetached checks signaturePath against the contents of path and
// returns the signing entity. Armored signatures are tried first.
func VerifyDetached(keyring openpgp.KeyRing, path, signaturePath string) (*openpgp.Entity, error) {
	signed, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer signed.Close()

	sig, err := os.ReadFile(signaturePath)
	if err != nil {
		return nil, fmt.Errorf("open signature: %w", err)
	}

	signer, err := openpgp.CheckArmoredDetachedSignature(keyring, signed, bytes.NewReader(sig), nil)
	if err != nil {
		if _, seekErr := signed.Seek(0, io.SeekStart); seekErr != nil {
			return nil, seekErr
		}
		signer, err = openpgp.CheckDetachedSignature(keyring, signed, bytes.NewReader(sig), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return signer, nil
}
