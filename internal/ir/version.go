package ir

// Version constants for the catalog schema and engine.
const (
	// CatalogVersion is the catalog document schema version.
	CatalogVersion = "1"

	// EngineVersion is the moment engine version.
	EngineVersion = "0.3.0"
)
