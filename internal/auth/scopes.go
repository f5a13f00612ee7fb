package auth

// Known OAuth scopes used by the fitcoach API.
const (
	ScopeActivitiesWrite     = "activities:write"
	ScopeActivitiesRead      = "activities:read"
	ScopeRecommendationsRead = "recommendations:read"
)
