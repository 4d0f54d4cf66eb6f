// Package protocol owns the serial-keel wire contract.
//
// Ownership boundary:
// - endpoint identity (mock/tty kind + name, optional labels)
// - action encoding (Write, Observe, Control, ControlAny)
// - envelope decoding into a closed tagged union
package protocol
