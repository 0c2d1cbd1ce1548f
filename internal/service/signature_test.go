package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testSecret = "webhook-test-secret"

func TestSignatureValidator_Validate(t *testing.T) {
	payload := []byte(`{"transactionId":"txn-1","status":"COMPLETED"}`)
	valid := ComputeSignature(payload, testSecret)

	tests := []struct {
		name      string
		signature string
		wantValid bool
		reason    string
	}{
		{name: "bare hex digest", signature: valid, wantValid: true},
		{name: "sha256 prefix", signature: "sha256=" + valid, wantValid: true},
		{name: "hmac-sha256 prefix", signature: "hmac-sha256=" + valid, wantValid: true},
		{name: "uppercase digest", signature: strings.ToUpper(valid), wantValid: true},
		{name: "surrounding whitespace", signature: "  " + valid + "  ", wantValid: true},
		{name: "missing signature", signature: "", wantValid: false, reason: "signature missing"},
		{name: "not hex", signature: "zzzz-not-hex", wantValid: false, reason: "signature is not valid hex"},
		{name: "wrong digest", signature: ComputeSignature([]byte("other payload"), testSecret), wantValid: false, reason: "signature mismatch"},
		{name: "truncated digest", signature: valid[:32], wantValid: false, reason: "signature mismatch"},
	}

	validator := NewSignatureValidator(testSecret, false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validator.Validate(payload, tt.signature)
			assert.Equal(t, tt.wantValid, result.IsValid)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, result.Reason)
			}
			assert.Equal(t, "hmac-sha256", result.Algorithm)
		})
	}
}

func TestSignatureValidator_WrongSecret(t *testing.T) {
	payload := []byte(`{"transactionId":"txn-1"}`)
	signature := ComputeSignature(payload, "attacker-secret")

	result := NewSignatureValidator(testSecret, false).Validate(payload, signature)
	assert.False(t, result.IsValid)
	assert.Equal(t, "signature mismatch", result.Reason)
}

func TestSignatureValidator_MissingSecret(t *testing.T) {
	payload := []byte(`{}`)

	t.Run("fails closed by default", func(t *testing.T) {
		result := NewSignatureValidator("", false).Validate(payload, ComputeSignature(payload, "any"))
		assert.False(t, result.IsValid)
		assert.Equal(t, "signing secret not configured", result.Reason)
	})

	t.Run("allowUnsigned accepts anything", func(t *testing.T) {
		validator := NewSignatureValidator("", true)
		assert.True(t, validator.Validate(payload, "").IsValid)
		assert.True(t, validator.Validate(payload, "garbage").IsValid)
	})
}

func TestComputeSignature_Deterministic(t *testing.T) {
	payload := []byte("payload bytes")

	first := ComputeSignature(payload, testSecret)
	second := ComputeSignature(payload, testSecret)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	assert.Equal(t, strings.ToLower(first), first)

	assert.NotEqual(t, first, ComputeSignature(payload, "other-secret"))
	assert.NotEqual(t, first, ComputeSignature([]byte("payload bytes!"), testSecret))
}
