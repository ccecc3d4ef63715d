// Package memzero wipes secret material from byte slices once the code
// holding them is done. Key material for a settled handshake has no reason
// to stay readable in process memory.
package memzero

import "crypto/subtle"

// Zero overwrites every byte of b. Going through ConstantTimeCopy keeps the
// compiler from treating the writes as dead stores.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}
