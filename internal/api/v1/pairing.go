package v1

import "time"

type PairingStartRequest struct {
	DeviceUID string `json:"device_uid"`
}

func (r *PairingStartRequest) UnmarshalJSON(data []byte) error {
	type plain PairingStartRequest
	return unmarshalLoose(data, (*plain)(r))
}

type PairingStartResponse struct {
	DeviceUID   string    `json:"device_uid"`
	PairingCode string    `json:"pairing_code"`
	ExpiresAt   time.Time `json:"expires_at"`
	TTLSeconds  int       `json:"ttl_seconds"`
}

type PairingConfirmRequest struct {
	DeviceUID   string `json:"device_uid"`
	PairingCode string `json:"pairing_code"`
}

func (r *PairingConfirmRequest) UnmarshalJSON(data []byte) error {
	type plain PairingConfirmRequest
	return unmarshalLoose(data, (*plain)(r))
}

type PairingConfirmResponse struct {
	DeviceID    int64     `json:"device_id"`
	OwnerUserID int64     `json:"owner_user_id"`
	DeviceUID   string    `json:"device_uid"`
	// DeviceToken is the plaintext credential. It is emitted exactly once;
	// the server stores only its SHA-256 hash.
	DeviceToken string    `json:"device_token"`
	ClaimedAt   time.Time `json:"claimed_at"`
}
