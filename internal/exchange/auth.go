package exchange

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Request header names for authenticated endpoints.
const (
	headerKeyID     = "KALSHI-ACCESS-KEY"
	headerSignature = "KALSHI-ACCESS-SIGNATURE"
	headerTimestamp = "KALSHI-ACCESS-TIMESTAMP"
)

// Signer produces the three authentication headers the exchange requires on
// portfolio endpoints: the access key ID, a millisecond timestamp, and an
// RSA-PSS/SHA-256 signature over timestamp||METHOD||path. The signed path
// never includes the query string, and the salt length equals the digest
// length.
type Signer struct {
	keyID string
	key   *rsa.PrivateKey
	now   func() time.Time // overridable for tests
}

// NewSigner creates a request signer for the given access key.
func NewSigner(keyID string, key *rsa.PrivateKey) *Signer {
	return &Signer{keyID: keyID, key: key, now: time.Now}
}

// LoadPrivateKeyPEM reads an RSA private key from a PEM file (PKCS#1 or
// PKCS#8).
func LoadPrivateKeyPEM(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return parsePrivateKey(raw)
}

// ParsePrivateKeyB64 decodes a base64-encoded PEM private key, the form
// used when the key is supplied through the environment rather than a file.
func ParsePrivateKeyB64(b64 string) (*rsa.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	return parsePrivateKey(raw)
}

func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in private key material")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want RSA", parsed)
	}
	return key, nil
}

// Sign computes the base64 RSA-PSS signature over tsMillis||method||path.
// path must already exclude the query string.
func (s *Signer) Sign(tsMillis int64, method, path string) (string, error) {
	msg := strconv.FormatInt(tsMillis, 10) + method + path
	digest := sha256.Sum256([]byte(msg))

	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Headers builds the authentication headers for one request. rawPath may
// include a query string; only the path component is signed.
func (s *Signer) Headers(method, rawPath string) (map[string]string, error) {
	path := rawPath
	if u, err := url.Parse(rawPath); err == nil {
		path = u.Path
	}

	ts := s.now().UnixMilli()
	sig, err := s.Sign(ts, method, path)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		headerKeyID:     s.keyID,
		headerTimestamp: strconv.FormatInt(ts, 10),
		headerSignature: sig,
	}, nil
}

// KeyID returns the configured access key identifier.
func (s *Signer) KeyID() string {
	return s.keyID
}
