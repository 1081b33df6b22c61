// Package transport moves signed envelopes over HTTP: a Sender that posts to
// a peer's /submit endpoint with retries, and a Receiver that serves /submit
// and hands verified messages to a Handler.
package transport
