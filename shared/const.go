package shared

const (
	UserID            = "user_id"
	UserEmail         = "user_email"
	UserRole          = "user_role"
	SessionID         = "session_id"
	DeviceFingerprint = "device_fingerprint"
	ClientIP          = "client_ip"

	RoleUser  = "user"
	RoleAdmin = "admin"

	// Sentinel fingerprint when derivation fails. The rate limiter skips
	// the device axis for these requests and falls back to IP only.
	FingerprintUnknown = "unknown"

	AxisIP     = "ip"
	AxisDevice = "device"
	AxisUser   = "user"

	SessionHeader = "x-session-id"
)
