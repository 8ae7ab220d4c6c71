// Package webhook signs billing payloads the way the billing provider does,
// for replaying and testing queued deliveries.
package webhook

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	stripewebhook "github.com/stripe/stripe-go/v83/webhook"
)

func GenerateSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(bytes), nil
}

// Sign returns the Stripe-Signature header for payload signed at timestamp.
// A zero timestamp signs at the current time.
func Sign(payload []byte, secret string, timestamp time.Time) string {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: timestamp,
	})
	return signed.Header
}
