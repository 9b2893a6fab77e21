package domain

// Role labels assigned by the dashboard API.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Identity is the authenticated user as decoded from access token claims.
// It is derived state: recomputed whenever a new access token is decoded,
// never stored independently.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// TokenPair is the access and refresh token pair issued by the auth API.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}
