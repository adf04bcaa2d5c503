package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/taskhive/taskhive/internal/breaker"
	"github.com/taskhive/taskhive/internal/model"

	"github.com/jmoiron/sqlx"
)

type TasksRepository interface {
	Create(ctx context.Context, userID int64, title, description string) (*model.Task, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Task, error)
	Update(ctx context.Context, taskID, userID int64, title, description *string, status *model.TaskStatus) (*model.Task, error)
	Delete(ctx context.Context, taskID, userID int64) (bool, error)
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}

type TasksRepositoryImpl struct {
	db *sqlx.DB
	br *breaker.Breaker
}

func NewTasksRepository(db *sqlx.DB, br *breaker.Breaker) *TasksRepositoryImpl {
	return &TasksRepositoryImpl{db: db, br: br}
}

var _ TasksRepository = (*TasksRepositoryImpl)(nil)

func (r *TasksRepositoryImpl) Create(ctx context.Context, userID int64, title, description string) (*model.Task, error) {
	var t model.Task
	err := r.br.Do(ctx, func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO tasks (user_id, title, description, status, created_at, updated_at)
			VALUES (?, ?, ?, 'pending', NOW(), NOW())
		`, userID, title, description)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		return r.db.GetContext(ctx, &t, taskColumns+` WHERE id = ?`, id)
	})
	if err != nil {
		return nil, classify("tasks.create", err, "user_id", userID)
	}
	return &t, nil
}

func (r *TasksRepositoryImpl) ListByUser(ctx context.Context, userID int64) ([]model.Task, error) {
	tasks := []model.Task{}
	err := r.br.Do(ctx, func(ctx context.Context) error {
		return r.db.SelectContext(ctx, &tasks,
			taskColumns+` WHERE user_id = ? ORDER BY created_at DESC`, userID)
	})
	if err != nil {
		return nil, classify("tasks.list", err, "user_id", userID)
	}
	return tasks, nil
}

// Update patches only the provided fields; nil pointers keep current values.
// Returns nil when the task does not exist or belongs to another user.
func (r *TasksRepositoryImpl) Update(ctx context.Context, taskID, userID int64, title, description *string, status *model.TaskStatus) (*model.Task, error) {
	var t model.Task
	err := r.br.Do(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, `
			UPDATE tasks
			   SET title       = COALESCE(?, title),
			       description = COALESCE(?, description),
			       status      = COALESCE(?, status),
			       updated_at  = NOW()
			 WHERE id = ? AND user_id = ?
		`, title, description, status, taskID, userID)
		if err != nil {
			return err
		}
		return r.db.GetContext(ctx, &t, taskColumns+` WHERE id = ? AND user_id = ?`, taskID, userID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("tasks.update", err, "task_id", taskID, "user_id", userID)
	}
	return &t, nil
}

func (r *TasksRepositoryImpl) Delete(ctx context.Context, taskID, userID int64) (bool, error) {
	var affected int64
	err := r.br.Do(ctx, func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx,
			`DELETE FROM tasks WHERE id = ? AND user_id = ?`, taskID, userID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, classify("tasks.delete", err, "task_id", taskID)
	}
	return affected > 0, nil
}

// DeleteByUser removes every task owned by the user. Zero rows is a success;
// cascade redelivery relies on that.
func (r *TasksRepositoryImpl) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	var affected int64
	err := r.br.Do(ctx, func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ?`, userID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, classify("tasks.delete_by_user", err, "user_id", userID)
	}
	return affected, nil
}

const taskColumns = `
	SELECT id, user_id, title, description, status, created_at, updated_at
	  FROM tasks`
