// Package app loads configuration and wires stores, services, and the
// transport client into a ready-to-use dependency graph.
package app
