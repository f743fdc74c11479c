// Package alerts converts non-ok check results into deduplicated alerts and
// delivers them by email, either batched into an HTML digest or one at a
// time. Deduplication rides on the store's transactional duplicate test, so
// repeated findings within the window never fan out into repeated alerts.
package alerts
