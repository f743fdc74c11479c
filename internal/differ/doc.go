// Package differ detects content changes per URL. The light path compares a
// normalized sha256 fingerprint against the last stored snapshot; the deep
// path additionally keeps the full extracted text and computes a line-level
// similarity ratio with a bounded unified-diff summary. Fingerprinting runs
// every cycle and stays cheap; deep diffs are opt-in.
package differ
