// Package session owns the client-side session multiplexer for a
// serial-keel server.
//
// Ownership boundary:
// - the sole reader of the connection and its frame routing
// - positional correlation of control-plane replies
// - the control/observe admission handshake
// - per-endpoint mailboxes and their consumer streams
//
// One logical control-plane call is in flight at a time; the protocol has
// no request identifiers, so replies correlate to requests by issue order.
package session
