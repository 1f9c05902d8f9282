// Package oracle asks a language model which classification rule applies to a
// message. The model is treated as an opaque text-in, JSON-out function; every
// failure degrades to a "none" Verdict instead of an error.
package oracle
