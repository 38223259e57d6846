// Package session holds per-connection security state and the server-wide
// session table.
//
// A SecurityContext is created once negotiation fixes the dialect, receives
// the session key exactly once when authentication completes, and is wiped
// when its owner goes away. The SMB1 sequence counter lives inside the same
// mutual-exclusion domain as the key, so two messages on one connection can
// never be signed with the same counter value.
//
// The Manager maps session IDs to sessions and hands out response credits.
package session
