// Package redis persists Droid accounts in Redis: one JSON document per
// account plus a set indexing the known account IDs.
package redis
