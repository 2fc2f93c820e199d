package secrets

// KeySpec defines how to resolve a specific secret.
type KeySpec struct {
	// EnvVars lists environment variables to check, in priority order.
	EnvVars []string

	// Desc is a human-readable description for error messages and CLI display.
	Desc string
}

// knownKeys maps secret names to their resolution specs.
// Adding a new secret is one entry here.
var knownKeys = map[string]KeySpec{
	"nexus_api_key": {
		EnvVars: []string{"NEXUS_API_KEY"},
		Desc:    "Nexus Mods API key used by the Nexus download source",
	},
}
