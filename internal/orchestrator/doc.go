// Package orchestrator is the public entry point of the verification
// subsystem: it ties the pending-request tracker, the per-transaction state
// machines, the trust store, and the session bootstrapper together behind one
// facade.
package orchestrator
