// Package signature computes and verifies the HMAC tokens carried on
// outbound webhook requests. Tokens have the form "sha256=<hex>" and are
// computed over the exact byte sequence of the request body.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Prefix is the algorithm tag carried in the signature header.
const Prefix = "sha256="

// ErrMissingSecret is returned when signing is attempted without a secret.
// A missing secret is a programmer error, never a delivery outcome.
var ErrMissingSecret = errors.New("signature: missing secret")

// Sign returns the signature token for body under secret.
func Sign(body []byte, secret string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return Prefix + hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether token is a valid signature for body under secret.
// Comparison is constant-time; malformed tokens simply verify false.
func Verify(body []byte, token, secret string) bool {
	if secret == "" || !strings.HasPrefix(token, Prefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(token, Prefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
