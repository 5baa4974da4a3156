package auth

// Scopes understood by the context API.
const (
	ScopeSessionsWrite  = "sessions:write"
	ScopeContextRead    = "context:read"
	ScopeContextRefresh = "context:refresh"
)
