// Package session owns transport timing for the control endpoint.
//
// Ownership boundary:
// - server receive/send and heartbeat defaults
// - controller request timeout and retry defaults
// - retry backoff primitives
package session
