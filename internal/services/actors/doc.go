// Package actors hosts small units of durable state addressed by a kind and
// an instance key.
//
// Each actor applies its mutations one at a time on a private executor,
// persists through an opaque key-value store before a change becomes
// visible, and fans state-change events out to any number of watchers. The
// transport that turns remote calls into local method invocations lives
// outside this tree.
package actors
