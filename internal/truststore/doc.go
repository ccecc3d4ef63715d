// Package truststore persists completed device verifications as an
// append-only record log on disk.
package truststore
