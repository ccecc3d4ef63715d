// Package verification holds the per-transaction SAS state machine and the
// pending-request tracker that enforces one live handshake per remote device.
package verification
