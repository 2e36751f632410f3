// Package api exposes the routing operations over HTTP and WebSocket.
//
// The JSON endpoints are a thin shell: verify identity, decode, call the
// routing engine, map typed failures to distinguishable status codes. The
// /ws endpoint upgrades an authenticated agent session into the connection
// registry; the server pushes events and the client sends only keep-alive
// traffic over it.
package api
