// Package conversation holds the typed per-session chat state: a map of
// conversations, each an ordered run of user/assistant turns with display
// metadata, plus the id of the conversation new messages land in. The state is
// a plain value; persistence belongs to pkg/session.
package conversation
