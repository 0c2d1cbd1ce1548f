package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureResult is the typed outcome of a verification. Malformed input
// never produces an error, only an invalid result.
type SignatureResult struct {
	IsValid   bool
	Reason    string
	Algorithm string
}

const signatureAlgorithm = "hmac-sha256"

// signaturePrefixes are optional scheme markers senders prepend to the hex
// digest.
var signaturePrefixes = []string{"sha256=", "sha1=", "hmac-sha256="}

// SignatureValidator verifies webhook payloads against a shared secret.
// A missing secret fails closed unless allowUnsigned is set, which the
// config layer only honors outside production.
type SignatureValidator struct {
	secret        string
	allowUnsigned bool
}

// NewSignatureValidator creates a validator for the given shared secret.
func NewSignatureValidator(secret string, allowUnsigned bool) *SignatureValidator {
	return &SignatureValidator{secret: secret, allowUnsigned: allowUnsigned}
}

// Validate checks the provided signature against HMAC-SHA256(secret, rawBody).
func (v *SignatureValidator) Validate(rawBody []byte, signature string) SignatureResult {
	if v.secret == "" {
		if v.allowUnsigned {
			return SignatureResult{IsValid: true, Reason: "unsigned webhooks allowed", Algorithm: signatureAlgorithm}
		}
		return SignatureResult{IsValid: false, Reason: "signing secret not configured", Algorithm: signatureAlgorithm}
	}

	if signature == "" {
		return SignatureResult{IsValid: false, Reason: "signature missing", Algorithm: signatureAlgorithm}
	}

	provided := strings.ToLower(strings.TrimSpace(signature))
	for _, prefix := range signaturePrefixes {
		if strings.HasPrefix(provided, prefix) {
			provided = strings.TrimPrefix(provided, prefix)
			break
		}
	}

	if _, err := hex.DecodeString(provided); err != nil {
		return SignatureResult{IsValid: false, Reason: "signature is not valid hex", Algorithm: signatureAlgorithm}
	}

	expected := ComputeSignature(rawBody, v.secret)
	if !hmac.Equal([]byte(provided), []byte(expected)) {
		return SignatureResult{IsValid: false, Reason: "signature mismatch", Algorithm: signatureAlgorithm}
	}

	return SignatureResult{IsValid: true, Algorithm: signatureAlgorithm}
}

// ComputeSignature returns the lower-case hex HMAC-SHA256 digest of payload.
func ComputeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
