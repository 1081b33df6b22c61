// Package envelope builds and verifies signed agent envelopes.
//
// The signature covers sha256 of the canonical JSON form of the envelope with
// signature set to null. Verification never returns a payload that failed any
// check; each rejection carries a RejectCode.
package envelope
