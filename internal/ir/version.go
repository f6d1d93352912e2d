package ir

// Version constants stamped on every journaled call.
const (
	// IRVersion is the journal record schema version.
	IRVersion = "1"

	// EngineVersion is the worldpurpose engine version.
	EngineVersion = "0.1.0"
)
