// Package signer holds the admin signing credential used to authorize
// allowlist transactions. Key material lives in a Keypair that zeroes its
// private bytes on Close.
package signer

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/alfredjeanlab/reconciler/internal/model"
)

// Signature scheme flags prefixed to public keys and serialized signatures.
const (
	FlagEd25519   byte = 0x00
	FlagSecp256k1 byte = 0x01
	FlagSecp256r1 byte = 0x02
)

// privateKeyHRP is the bech32 prefix of exported private keys.
const privateKeyHRP = "suiprivkey"

// transactionIntent is prepended to transaction bytes before hashing:
// scope TransactionData, version V0, app id Sui.
var transactionIntent = [3]byte{0, 0, 0}

var (
	// ErrInvalidKey is returned when the configured key cannot be decoded.
	ErrInvalidKey = errors.New("invalid signing key")
	// ErrUnsupportedScheme is returned for keys that are not ed25519.
	ErrUnsupportedScheme = errors.New("unsupported signature scheme")
	// ErrClosed is returned when signing with a keypair after Close.
	ErrClosed = errors.New("keypair closed")
)

// Keypair is an ed25519 signing credential.
type Keypair struct {
	mu      sync.Mutex
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	address model.Address
}

// ParseSecretKey decodes an encoded private key. Accepted encodings are the
// bech32 "suiprivkey1..." export format, base64 of flag||seed as stored in
// keystore files, and hex of the raw 32-byte seed.
func ParseSecretKey(encoded string) (*Keypair, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}

	var (
		flag byte
		seed []byte
	)
	switch {
	case strings.HasPrefix(strings.ToLower(encoded), privateKeyHRP+"1"):
		hrp, data, err := decodeBech32(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		if hrp != privateKeyHRP {
			return nil, fmt.Errorf("%w: unexpected prefix %q", ErrInvalidKey, hrp)
		}
		if len(data) != 1+ed25519.SeedSize {
			return nil, fmt.Errorf("%w: decoded length %d", ErrInvalidKey, len(data))
		}
		flag, seed = data[0], data[1:]
	case isHexSeed(encoded):
		raw, err := hex.DecodeString(strings.TrimPrefix(encoded, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		flag, seed = FlagEd25519, raw
	default:
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: not bech32, hex or base64", ErrInvalidKey)
		}
		switch len(raw) {
		case 1 + ed25519.SeedSize:
			flag, seed = raw[0], raw[1:]
		case ed25519.SeedSize:
			flag, seed = FlagEd25519, raw
		default:
			zero(raw)
			return nil, fmt.Errorf("%w: decoded length %d", ErrInvalidKey, len(raw))
		}
	}
	defer zero(seed)

	if flag != FlagEd25519 {
		return nil, fmt.Errorf("%w: flag 0x%02x", ErrUnsupportedScheme, flag)
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Keypair{
		priv:    priv,
		pub:     pub,
		address: DeriveAddress(pub),
	}, nil
}

func isHexSeed(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 2*ed25519.SeedSize {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// DeriveAddress returns the account address of an ed25519 public key:
// blake2b-256 over the scheme flag followed by the key bytes.
func DeriveAddress(pub ed25519.PublicKey) model.Address {
	buf := make([]byte, 0, 1+len(pub))
	buf = append(buf, FlagEd25519)
	buf = append(buf, pub...)
	sum := blake2b.Sum256(buf)
	return model.Address("0x" + hex.EncodeToString(sum[:]))
}

// Address returns the account address controlled by this keypair.
func (k *Keypair) Address() model.Address {
	return k.address
}

// PublicKey returns a copy of the public key.
func (k *Keypair) PublicKey() ed25519.PublicKey {
	out := make(ed25519.PublicKey, len(k.pub))
	copy(out, k.pub)
	return out
}

// SignTransaction signs BCS transaction bytes under the transaction intent
// and returns the serialized signature (flag || sig || pubkey) in base64.
func (k *Keypair) SignTransaction(txBytes []byte) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.priv == nil {
		return "", ErrClosed
	}

	msg := make([]byte, 0, len(transactionIntent)+len(txBytes))
	msg = append(msg, transactionIntent[:]...)
	msg = append(msg, txBytes...)
	digest := blake2b.Sum256(msg)

	sig := ed25519.Sign(k.priv, digest[:])
	out := make([]byte, 0, 1+len(sig)+len(k.pub))
	out = append(out, FlagEd25519)
	out = append(out, sig...)
	out = append(out, k.pub...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Close zeroes the private key. Subsequent signing fails with ErrClosed.
func (k *Keypair) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	zero(k.priv)
	k.priv = nil
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
