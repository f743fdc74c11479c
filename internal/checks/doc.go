// Package checks implements the six source-quality check strategies — link,
// content, paywall, availability, structure, staleness — as a closed dispatch
// table over a shared Result shape. Each strategy folds its failure modes
// into the result status, so one failing check never stops the rest. The
// Runner orchestrates all kinds over all configured pages with bounded
// concurrency, persisting every result as it is produced.
package checks
