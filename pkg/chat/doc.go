// Package chat is the upstream side of the service: provider implementations
// for OpenAI-compatible and Anthropic completion APIs, a client that turns one
// user message plus a trailing history window into a displayable reply, and the
// formatting pipeline applied to successful replies.
package chat
