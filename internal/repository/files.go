package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/taskhive/taskhive/internal/breaker"
	"github.com/taskhive/taskhive/internal/model"

	"github.com/jmoiron/sqlx"
)

type FilesRepository interface {
	Create(ctx context.Context, f model.File) (*model.File, error)
	ListByUser(ctx context.Context, userID int64) ([]model.File, error)
	GetByIDAndUser(ctx context.Context, fileID, userID int64) (*model.File, error)
	Delete(ctx context.Context, fileID, userID int64) (bool, error)
	DeleteByUser(ctx context.Context, userID int64) ([]string, error)
}

type FilesRepositoryImpl struct {
	db *sqlx.DB
	br *breaker.Breaker
}

func NewFilesRepository(db *sqlx.DB, br *breaker.Breaker) *FilesRepositoryImpl {
	return &FilesRepositoryImpl{db: db, br: br}
}

var _ FilesRepository = (*FilesRepositoryImpl)(nil)

func (r *FilesRepositoryImpl) Create(ctx context.Context, f model.File) (*model.File, error) {
	var saved model.File
	err := r.br.Do(ctx, func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO files (user_id, original_name, stored_name, mime_type, size, created_at)
			VALUES (?, ?, ?, ?, ?, NOW())
		`, f.UserID, f.OriginalName, f.StoredName, f.MimeType, f.Size)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		return r.db.GetContext(ctx, &saved, fileColumns+` WHERE id = ?`, id)
	})
	if err != nil {
		return nil, classify("files.create", err, "user_id", f.UserID)
	}
	return &saved, nil
}

func (r *FilesRepositoryImpl) ListByUser(ctx context.Context, userID int64) ([]model.File, error) {
	files := []model.File{}
	err := r.br.Do(ctx, func(ctx context.Context) error {
		return r.db.SelectContext(ctx, &files,
			fileColumns+` WHERE user_id = ? ORDER BY created_at DESC`, userID)
	})
	if err != nil {
		return nil, classify("files.list", err, "user_id", userID)
	}
	return files, nil
}

func (r *FilesRepositoryImpl) GetByIDAndUser(ctx context.Context, fileID, userID int64) (*model.File, error) {
	var f model.File
	err := r.br.Do(ctx, func(ctx context.Context) error {
		return r.db.GetContext(ctx, &f,
			fileColumns+` WHERE id = ? AND user_id = ?`, fileID, userID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("files.get", err, "file_id", fileID)
	}
	return &f, nil
}

func (r *FilesRepositoryImpl) Delete(ctx context.Context, fileID, userID int64) (bool, error) {
	var affected int64
	err := r.br.Do(ctx, func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx,
			`DELETE FROM files WHERE id = ? AND user_id = ?`, fileID, userID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, classify("files.delete", err, "file_id", fileID)
	}
	return affected > 0, nil
}

// DeleteByUser removes every metadata row owned by the user and returns the
// stored blob names so the caller can clean the disk afterwards. Select and
// delete run in one transaction; an empty result is a success.
func (r *FilesRepositoryImpl) DeleteByUser(ctx context.Context, userID int64) ([]string, error) {
	names := []string{}
	err := r.br.Do(ctx, func(ctx context.Context) error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if err := tx.SelectContext(ctx, &names,
			`SELECT stored_name FROM files WHERE user_id = ?`, userID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM files WHERE user_id = ?`, userID); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, classify("files.delete_by_user", err, "user_id", userID)
	}
	return names, nil
}

const fileColumns = `
	SELECT id, user_id, original_name, stored_name, mime_type, size, created_at
	  FROM files`
