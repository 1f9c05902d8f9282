// Package batch provides helpers for tools that act on many messages at
// once: parsing id arguments that accept a single value or a list, and
// summarizing per-message classification outcomes.
package batch
