// Package dds holds the single piece of DDS-facing state this repo is
// responsible for: the node secret pushed by the registration handshake.
// Everything else about DDS (the handshake itself, SIWE login, signed
// attestations) lives outside this process.
package dds

import "sync"

var (
	secretMu sync.Mutex
	secret   string
	hasSecret bool
)

// WriteNodeSecret stores the secret bytes in memory, process-wide.
func WriteNodeSecret(s string) {
	secretMu.Lock()
	defer secretMu.Unlock()
	secret = s
	hasSecret = true
}

// ReadNodeSecret returns the stored secret and whether one has been set.
func ReadNodeSecret() (string, bool) {
	secretMu.Lock()
	defer secretMu.Unlock()
	return secret, hasSecret
}

// ClearNodeSecret clears any stored secret. Intended for tests.
func ClearNodeSecret() {
	secretMu.Lock()
	defer secretMu.Unlock()
	secret = ""
	hasSecret = false
}
