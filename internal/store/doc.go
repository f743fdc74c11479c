// Package store is the durable SQLite record of everything the monitor
// observes: append-only check history, append-only content snapshots, and the
// alert lifecycle (created → emailed → resolved). Nothing is ever deleted.
// The duplicate-alert test and insert are a single transaction so concurrent
// runs cannot double-alert.
package store
