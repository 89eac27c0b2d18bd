// Package timeouts defines shared timeout constants used across the actor
// runtime. Keeping them together makes the durations discoverable.
package timeouts

import "time"

// ActorLoad caps how long an actor may spend reading its initial state from
// the durable store.
const ActorLoad = 10 * time.Second

// ActorLeave caps the detached cleanup that runs after a watcher disconnects.
const ActorLeave = 5 * time.Second

// StoreOpen caps how long a file-backed store waits for its database lock.
const StoreOpen = time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second
