package gateway

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// Signer hashes the canonical token payload for one gateway integration.
type Signer interface {
	Algorithm() string
	Sign(payload string) string
}

type sha256Signer struct{}

func (sha256Signer) Algorithm() string { return "sha256" }

func (sha256Signer) Sign(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

type md5Signer struct{}

func (md5Signer) Algorithm() string { return "md5" }

func (md5Signer) Sign(payload string) string {
	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func NewSigner(algorithm string) (Signer, error) {
	switch strings.ToLower(algorithm) {
	case "", "sha256":
		return sha256Signer{}, nil
	case "md5":
		return md5Signer{}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

// TokenPayload joins the signed fields the way gateways expect them.
func TokenPayload(apiKey, merchantID, reference, amount, currency string) string {
	return strings.Join([]string{apiKey, merchantID, reference, amount, currency}, "~")
}

// tokensEqual compares hex tokens in constant time, ignoring case.
func tokensEqual(expected, got string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(got))) == 1
}
