// Package mysql persists Droid accounts in MySQL. It owns the schema
// migrations embedded from deploy/migrations and maps driver errors onto the
// account error codes.
package mysql
