// Package session owns the session registry and lifecycle: creation with
// per-owner capacity enforcement, access with TTL expiry, per-session query
// exclusivity, and background reaping of idle sessions.
//
// Invariants:
// - The registry lock guards the map and record metadata only, never agent calls.
// - A session's exclusivity lock is acquired non-blocking; contenders fail fast.
// - Status moves active -> expired or active -> terminated, never back.
package session
