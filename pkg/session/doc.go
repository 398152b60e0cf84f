// Package session is the server-side session layer: a Store interface with
// in-memory and sqlite backends holding opaque state documents under a TTL, a
// typed Repository that encodes and decodes the conversation state, and a
// cron-driven Sweeper that removes expired sessions.
package session
