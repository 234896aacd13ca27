package model

import "time"

// Message is immutable once created. The client orders messages by arrival,
// not by CreatedAt, since CreatedAt may tie.
type Message struct {
	ID        string    `json:"_id"`
	Content   string    `json:"content"`
	Sender    User      `json:"sender"`
	RoomID    string    `json:"roomId"`
	CreatedAt time.Time `json:"createdAt"`
}
