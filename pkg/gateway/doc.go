// Package gateway exposes the browser-facing HTTP surface: the chat endpoint,
// conversation management routes, the rendered index page, and a websocket
// status stream. State lives in the per-browser session; handlers load it,
// mutate it through the conversation package, and write it back.
package gateway
