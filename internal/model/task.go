package model

import (
	"strings"
	"time"
)

type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusDone    TaskStatus = "done"
)

func (s TaskStatus) String() string { return string(s) }

func (s TaskStatus) Valid() bool {
	return s == TaskStatusPending || s == TaskStatusDone
}

// ParseTaskStatus normalizes input; empty => pending.
// Returns (value, true) if valid; otherwise (pending, false).
func ParseTaskStatus(s string) (TaskStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pending":
		return TaskStatusPending, true
	case "done":
		return TaskStatusDone, true
	default:
		return TaskStatusPending, false
	}
}

// Task is the DB entity persisted in the task service's tasks table.
type Task struct {
	ID          int64      `db:"id" json:"id"`
	UserID      int64      `db:"user_id" json:"user_id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	Status      TaskStatus `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
