// Package authcore implements the session and credential subsystem used by
// the taskwell backend: a cache-aside session store backed by Postgres and
// Redis, short-lived HMAC-signed session tokens, session revocation (single,
// bulk, selective), and middleware support for transparently renewing
// expired tokens against the authoritative session record.
//
// The package exposes two managers. Sessions owns the session lifecycle and
// token mint/verify. Credentials owns registration, login, and the password
// reset flow. Both are wired through a small dependency Container so route
// handlers resolve them lazily per process.
//
// The relational store is always the source of truth; the Redis projection
// is a derived, expendable accelerator. Losing a cache entry costs one store
// round-trip and never violates correctness.
package authcore
