// Package bootstrap establishes sessions with devices we cannot decrypt
// from yet, deduplicating in-flight requests so a burst of undecryptable
// messages fans out at most one key request per device.
package bootstrap
