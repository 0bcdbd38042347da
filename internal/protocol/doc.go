// Package protocol owns the control wire contract.
//
// Ownership boundary:
// - request and status enumerations with their wire codes
// - protocol version constant
// - protocol error sentinels
//
// Framing lives in protocol/frame, the per-request table in protocol/schema and
// transport timing defaults in protocol/session.
package protocol
