// Package transport adapts the sync gateway's HTTP API to the domain
// Transport contract. Outbound to-device messages are queued in memory and
// only hit the wire on FlushOutgoing.
package transport
