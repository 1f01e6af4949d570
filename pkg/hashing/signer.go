package hashing

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SignAlgorithm names a supported signature scheme.
type SignAlgorithm string

const (
	SignEd25519  SignAlgorithm = "ed25519"
	SignRSA256   SignAlgorithm = "rsa-sha256"
)

// KeySigner signs hex-encoded content hashes for pkg/auditchain and
// signs report bytes for pkg/report, embedding a key id in the
// returned signature string as "<algo>:<keyID>:<hex signature>".
type KeySigner struct {
	Algorithm SignAlgorithm
	KeyID     string
	ed25519Priv ed25519.PrivateKey
	rsaPriv     *rsa.PrivateKey
}

// NewEd25519KeySigner wraps an Ed25519 private key.
func NewEd25519KeySigner(keyID string, priv ed25519.PrivateKey) *KeySigner {
	return &KeySigner{Algorithm: SignEd25519, KeyID: keyID, ed25519Priv: priv}
}

// NewRSAKeySigner wraps an RSA private key, signing with PKCS#1 v1.5 over SHA-256.
func NewRSAKeySigner(keyID string, priv *rsa.PrivateKey) *KeySigner {
	return &KeySigner{Algorithm: SignRSA256, KeyID: keyID, rsaPriv: priv}
}

// Sign implements pkg/auditchain.Signer and is also used directly by
// pkg/report for report signing.
func (s *KeySigner) Sign(contentHashHex string) (string, error) {
	raw, err := hex.DecodeString(contentHashHex)
	if err != nil {
		return "", fmt.Errorf("hashing: sign: invalid content hash hex: %w", err)
	}

	var sigBytes []byte
	switch s.Algorithm {
	case SignEd25519:
		if s.ed25519Priv == nil {
			return "", fmt.Errorf("hashing: sign: no ed25519 key configured")
		}
		sigBytes = ed25519.Sign(s.ed25519Priv, raw)
	case SignRSA256:
		if s.rsaPriv == nil {
			return "", fmt.Errorf("hashing: sign: no rsa key configured")
		}
		digest := sha256.Sum256(raw)
		sigBytes, err = rsa.SignPKCS1v15(rand.Reader, s.rsaPriv, crypto.SHA256, digest[:])
		if err != nil {
			return "", fmt.Errorf("hashing: sign: rsa sign: %w", err)
		}
	default:
		return "", fmt.Errorf("hashing: sign: unsupported algorithm %q", s.Algorithm)
	}

	return fmt.Sprintf("%s:%s:%s", s.Algorithm, s.KeyID, hex.EncodeToString(sigBytes)), nil
}

// PublicKey returns the hex-encoded Ed25519 public key, for signature
// verification by downstream consumers.
func (s *KeySigner) PublicKey() string {
	switch s.Algorithm {
	case SignEd25519:
		pub := s.ed25519Priv.Public().(ed25519.PublicKey)
		return hex.EncodeToString(pub)
	case SignRSA256:
		return ""
	default:
		return ""
	}
}

// VerifyEd25519 verifies a raw content hash signature produced by Sign
// for an Ed25519 key, given the hex public key.
func VerifyEd25519(pubKeyHex, contentHashHex, sigHex string) (bool, error) {
	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("hashing: verify: invalid public key hex: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("hashing: verify: invalid public key size")
	}
	raw, err := hex.DecodeString(contentHashHex)
	if err != nil {
		return false, fmt.Errorf("hashing: verify: invalid content hash hex: %w", err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("hashing: verify: invalid signature hex: %w", err)
	}
	return ed25519.Verify(ed25519.PublicKey(pubKey), raw, sig), nil
}
