package model

// NotificationKind is the closed set of server notification types. The wire
// carries an open string; unknown values map to KindInfo with the raw type
// preserved in RawType.
type NotificationKind string

const (
	KindUserJoined NotificationKind = "USER_JOINED"
	KindUserLeft   NotificationKind = "USER_LEFT"
	KindInfo       NotificationKind = "INFO"
	KindError      NotificationKind = "ERROR"
)

// ParseNotificationKind maps a wire type string onto the closed set.
func ParseNotificationKind(raw string) NotificationKind {
	switch NotificationKind(raw) {
	case KindUserJoined, KindUserLeft, KindError:
		return NotificationKind(raw)
	default:
		return KindInfo
	}
}

// Notification is transient UX signaling. Consumed once by the relay sink,
// never persisted, never redelivered.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	RawType string           `json:"type"`
	Message string           `json:"message"`
}
