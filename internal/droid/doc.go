// Package droid manages Factory Droid upstream accounts: the credentials,
// endpoint dialect and scheduling attributes the relay uses when forwarding
// requests. Credentials are sealed by a crypto.Cipher before they reach a
// Store and are only returned in plaintext by Service.
package droid
