package types

// KeyMaterial is the opaque public key blob exchanged during the SAS
// handshake. The transport owns its format; we only feed it to the short-code
// and MAC derivations.
type KeyMaterial []byte

// DeviceKeys is the published identity key set of one remote device, as
// returned by a device-key query.
type DeviceKeys struct {
	UserID      UserID   `json:"user_id"`
	DeviceID    DeviceID `json:"device_id"`
	IdentityKey string   `json:"identity_key"`
	SigningKey  string   `json:"signing_key"`
}

// OneTimeKey is a claimed one-time key used to establish an outbound session
// with a device.
type OneTimeKey struct {
	DeviceID DeviceID `json:"device_id"`
	KeyID    string   `json:"key_id"`
	Key      string   `json:"key"`
}
