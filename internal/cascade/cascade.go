// Package cascade implements the user.deleted handlers for the task and file
// services. Each handler runs the full step sequence for one delivery:
// invalidate cache, delete owned rows, clean owned blobs. Every step is
// idempotent, so any redelivery strategy the broker chooses is safe.
package cascade

import (
	"context"
	"encoding/json"

	"github.com/taskhive/taskhive/internal/errs"
	"github.com/taskhive/taskhive/internal/model"

	"go.uber.org/zap"
)

// Invalidator removes a user's cache entry. Failures are swallowed by the
// cache layer itself; the call cannot fail.
type Invalidator interface {
	Invalidate(ctx context.Context, userID int64)
}

// TaskDeleter deletes all tasks owned by a user, reporting rows removed.
type TaskDeleter interface {
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}

// FileDeleter deletes all file metadata owned by a user, returning the
// stored blob names for disk cleanup.
type FileDeleter interface {
	DeleteByUser(ctx context.Context, userID int64) ([]string, error)
}

// BlobRemover removes one blob from durable storage; missing blobs are not
// an error.
type BlobRemover interface {
	Remove(name string) error
}

// parseEvent extracts the user id, classifying anything unrepairable as
// poison: malformed JSON and missing/non-positive ids can never succeed on
// redelivery, so they are dropped by policy rather than looped on.
func parseEvent(body []byte) (int64, error) {
	var ev model.DeletionEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return 0, errs.E(errs.Poison, "cascade.parse", err, "body_len", len(body))
	}
	if ev.UserID <= 0 {
		return 0, errs.E(errs.Poison, "cascade.parse", nil, "user_id", ev.UserID)
	}
	return ev.UserID, nil
}

// TaskCascade removes a deleted user's tasks. The cache entry is invalidated
// strictly before the store delete: invalidating after could let a racing
// read repopulate the key from a half-deleted store within the same window.
type TaskCascade struct {
	cache Invalidator
	tasks TaskDeleter
	log   *zap.Logger
}

func NewTaskCascade(cache Invalidator, tasks TaskDeleter, log *zap.Logger) *TaskCascade {
	return &TaskCascade{cache: cache, tasks: tasks, log: log}
}

func (c *TaskCascade) Handle(ctx context.Context, body []byte) error {
	userID, err := parseEvent(body)
	if err != nil {
		return err
	}
	c.log.Info("received user.deleted event", zap.Int64("user_id", userID))

	// Ordering invariant: invalidate first, then delete.
	if c.cache != nil {
		c.cache.Invalidate(ctx, userID)
	}

	n, err := c.tasks.DeleteByUser(ctx, userID)
	if err != nil {
		return err
	}
	c.log.Info("cascade removed tasks", zap.Int64("user_id", userID), zap.Int64("rows", n))
	return nil
}

// FileCascade removes a deleted user's file rows and their blobs. The file
// service owns no cache; there is nothing to invalidate.
type FileCascade struct {
	files FileDeleter
	blobs BlobRemover
	log   *zap.Logger
}

func NewFileCascade(files FileDeleter, blobs BlobRemover, log *zap.Logger) *FileCascade {
	return &FileCascade{files: files, blobs: blobs, log: log}
}

func (c *FileCascade) Handle(ctx context.Context, body []byte) error {
	userID, err := parseEvent(body)
	if err != nil {
		return err
	}
	c.log.Info("received user.deleted event", zap.Int64("user_id", userID))

	names, err := c.files.DeleteByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := c.blobs.Remove(name); err != nil {
			return errs.E(errs.Transient, "cascade.remove_blob", err,
				"user_id", userID, "blob", name)
		}
	}
	c.log.Info("cascade removed files",
		zap.Int64("user_id", userID), zap.Int("rows", len(names)))
	return nil
}
