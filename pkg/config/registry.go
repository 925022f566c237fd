package config

// Persistent state keys (Registry)
const (
	KeyLanguage        = "lang"
	KeyOwnerName       = "owner_name"
	KeyAlignTolerance  = "align_tolerance"
	KeyNoMotionEnabled = "no_motion_enabled"
	KeyDeviceProvider  = "device_provider"
	KeyBootCount       = "boot_count"
)
