package types

// TrustMethod records how a device came to be trusted.
type TrustMethod string

const (
	// MethodSAS is an interactive short-code comparison confirmed by a human.
	MethodSAS TrustMethod = "sas"
	// MethodQRCode is a scanned QR verification.
	MethodQRCode TrustMethod = "qr_code"
	// MethodFingerprint is a manual fingerprint comparison.
	MethodFingerprint TrustMethod = "fingerprint"
	// MethodAutoTrusted marks unattended-mode acceptance. Kept distinct from
	// human-confirmed methods so audits can tell them apart.
	MethodAutoTrusted TrustMethod = "auto_trusted"
)

// TrustRecord is durable evidence that a device completed verification.
// Records are append-only: re-verifying a device writes a new record and
// marks the older one superseded, it never deletes history.
type TrustRecord struct {
	UserID      UserID      `json:"user_id"`
	DeviceID    DeviceID    `json:"device_id"`
	VerifiedUTC int64       `json:"verified_utc"`
	Method      TrustMethod `json:"method"`
	Superseded  bool        `json:"superseded"`
}
