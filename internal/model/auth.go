package model

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is the response body for a successful login.
type TokenResponse struct {
	AccessToken     string `json:"access_token"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int    `json:"expires_in"`
	UserID          string `json:"user_id"`
	Username        string `json:"username"`
	AvailableTokens int    `json:"available_tokens"`
}

// UserInfoResponse is the response body for GET /auth/me.
type UserInfoResponse struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	AvailableTokens int    `json:"available_tokens"`
	CreatedAt       string `json:"created_at"`
}
