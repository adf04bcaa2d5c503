package model

// Broker wire contract shared by the identity publisher and the cascade consumers.
const (
	UserEventsExchange = "user.events"
	UserDeletedKey     = "user.deleted"

	TaskServiceQueue = "task-service-user-events"
	FileServiceQueue = "file-service-user-events"
)

// DeletionEvent is the body of a user.deleted message. Immutable; published once
// per account deletion and consumed independently by each bound queue.
type DeletionEvent struct {
	UserID int64 `json:"userId"`
}
