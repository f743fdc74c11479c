// Package config loads and validates the sourcewatch configuration file:
// monitored source definitions, engine settings (schedule interval, worker
// limit, dedup window), and SMTP delivery settings. Secrets are resolved
// from the environment, never stored in the file. Watch provides
// fsnotify-based hot reload.
package config
