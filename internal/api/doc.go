// Package api exposes the read-only HTTP surface of DroidRelay: a health
// probe plus masked listings of the stored droid accounts.
package api
