package model

// Identity is the authenticated user snapshot handed to the core at session
// start. Read-only; at most one active identity per session.
type Identity struct {
	ID        string `json:"_id"`
	Username  string `json:"username"`
	IsAdmin   bool   `json:"isAdmin"`
	AuthToken string `json:"token"`
}

// User is a room participant as pushed by the server.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}
