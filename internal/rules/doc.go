// Package rules holds classification rules, their owner-scoped management and
// the matcher that maps a classifier verdict onto a rule.
package rules
