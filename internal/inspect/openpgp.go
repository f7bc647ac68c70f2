package inspect

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

var pubKeyAlgoNames = map[packet.PublicKeyAlgorithm]string{
	packet.PubKeyAlgoRSA:     "RSA",
	packet.PubKeyAlgoElGamal: "ElGamal",
	packet.PubKeyAlgoDSA:     "DSA",
	packet.PubKeyAlgoECDH:    "ECDH",
	packet.PubKeyAlgoECDSA:   "ECDSA",
	packet.PubKeyAlgoEdDSA:   "EdDSA",
	packet.PubKeyAlgoEd25519: "Ed25519",
	packet.PubKeyAlgoEd448:   "Ed448",
}

func algoName(a packet.PublicKeyAlgorithm) string {
	if name, ok := pubKeyAlgoNames[a]; ok {
		return name
	}
	return fmt.Sprintf("algorithm %d", a)
}

func (i *Inspector) openPGP(path string, r *Result) error {
	data, err := readAll(path)
	if err != nil {
		return err
	}

	body := io.Reader(bytes.NewReader(data))
	if bytes.Contains(data, []byte("-----BEGIN PGP ")) {
		block, err := armor.Decode(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("decode armor: %w", err)
		}
		r.add("armor", block.Type)
		body = block.Body
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read OpenPGP data: %w", err)
	}

	p, err := packet.Read(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("read OpenPGP packet: %w", err)
	}
	switch pkt := p.(type) {
	case *packet.Signature:
		r.Kind = KindOpenPGPSignature
		describeSignature(pkt, r)
		return nil
	case *packet.PublicKey, *packet.PrivateKey:
		r.Kind = KindOpenPGPKey
		keyring, err := openpgp.ReadKeyRing(bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("read keyring: %w", err)
		}
		describeKeyring(keyring, r)
		return nil
	default:
		return fmt.Errorf("unexpected OpenPGP packet %T", p)
	}
}

func describeSignature(sig *packet.Signature, r *Result) {
	if sig.IssuerKeyId != nil {
		r.add("issuer key", fmt.Sprintf("%016X", *sig.IssuerKeyId))
	}
	if len(sig.IssuerFingerprint) > 0 {
		r.add("issuer fingerprint", fmt.Sprintf("%X", sig.IssuerFingerprint))
	}
	r.add("algorithm", algoName(sig.PubKeyAlgo))
	r.add("hash", sig.Hash.String())
	r.addTime("created", sig.CreationTime)
}

func describeKeyring(keyring openpgp.EntityList, r *Result) {
	if len(keyring) > 1 {
		r.add("keys", fmt.Sprintf("%d", len(keyring)))
	}
	for _, entity := range keyring {
		pk := entity.PrimaryKey
		r.add("fingerprint", fmt.Sprintf("%X", pk.Fingerprint))
		r.add("key id", pk.KeyIdString())
		r.add("algorithm", algoName(pk.PubKeyAlgo))
		r.addTime("created", pk.CreationTime)

		names := make([]string, 0, len(entity.Identities))
		for name := range entity.Identities {
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) > 0 {
			r.add("identities", strings.Join(names, "; "))
		}
		r.add("subkeys", fmt.Sprintf("%d", len(entity.Subkeys)))
		r.add("secret key", yesNo(entity.PrivateKey != nil))
	}
}
