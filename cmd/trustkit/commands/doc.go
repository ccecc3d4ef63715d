// Package commands defines the trustkit CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - listen     Poll the gateway and drive handshakes to a decision
//   - start      Open a handshake with a user's device and follow it through
//   - verified   List devices that completed verification
//
// listen and start share one event loop: it fetches inbound events, feeds
// them to the orchestrator, runs the timeout sweeper, and prompts for each
// short-code comparison (or auto-accepts with --unattended).
//
// # Implementation
//
// The root command loads the YAML config and builds a dependency graph
// (stores, orchestrator, gateway client) before any subcommand runs, so
// handlers share one app context.
package commands
