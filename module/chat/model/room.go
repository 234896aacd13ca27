package model

// Room identifies a chat channel. Membership, messages and presence are all
// scoped to it; selecting a new room tears down state bound to the previous
// one.
type Room struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
