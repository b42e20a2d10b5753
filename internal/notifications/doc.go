// Package notifications delivers run lifecycle events to ntfy. An empty
// topic yields a noop service so callers never branch on configuration.
package notifications
