package main

import (
	"crypto/subtle"
	"net/http"
)

const signatureHeader = "X-Webhook-Signature"

// validSignature checks the webhook shared secret in constant time.
func validSignature(r *http.Request, secret string) bool {
	provided := r.Header.Get(signatureHeader)
	if provided == "" || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) == 1
}
