// Package codec holds the text encodings used on the envelope wire: padded
// standard base64 for payloads and bech32 for addresses and signatures.
package codec
