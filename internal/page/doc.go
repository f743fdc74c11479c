// Package page wraps parsed HTML for the checks: script/style-stripped text
// extraction, CSS selector matching, and modified-time metadata lookup.
package page
