package ir

// Version constants for persisted and reported formats.
const (
	// KeyFormatVersion is bumped whenever natural key derivation changes.
	// Changing it invalidates every stored natural key.
	KeyFormatVersion = "1"

	// ReportFormatVersion is embedded in every ChangeSet report.
	ReportFormatVersion = "1"
)
