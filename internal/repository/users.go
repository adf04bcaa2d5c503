package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/taskhive/taskhive/internal/breaker"
	"github.com/taskhive/taskhive/internal/model"

	"github.com/jmoiron/sqlx"
)

type UsersRepository interface {
	Create(ctx context.Context, email, passwordHash string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	DeleteByID(ctx context.Context, id int64) (bool, error)
}

type UsersRepositoryImpl struct {
	db *sqlx.DB
	br *breaker.Breaker
}

func NewUsersRepository(db *sqlx.DB, br *breaker.Breaker) *UsersRepositoryImpl {
	return &UsersRepositoryImpl{db: db, br: br}
}

var _ UsersRepository = (*UsersRepositoryImpl)(nil)

func (r *UsersRepositoryImpl) Create(ctx context.Context, email, passwordHash string) (*model.User, error) {
	var u model.User
	err := r.br.Do(ctx, func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx,
			`INSERT INTO users (email, password, created_at) VALUES (?, ?, NOW())`,
			email, passwordHash,
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		return r.db.GetContext(ctx, &u,
			`SELECT id, email, password, created_at FROM users WHERE id = ?`, id)
	})
	if err != nil {
		if isDupEntry(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, classify("users.create", err, "email", email)
	}
	return &u, nil
}

func (r *UsersRepositoryImpl) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := r.br.Do(ctx, func(ctx context.Context) error {
		return r.db.GetContext(ctx, &u, `
			SELECT id, email, password, created_at
			  FROM users
			 WHERE email = ? LIMIT 1
		`, email)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("users.get_by_email", err)
	}
	return &u, nil
}

// DeleteByID removes the local account row. Reports whether a row existed;
// the caller publishes the deletion event only after a true result.
func (r *UsersRepositoryImpl) DeleteByID(ctx context.Context, id int64) (bool, error) {
	var affected int64
	err := r.br.Do(ctx, func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, classify("users.delete", err, "user_id", id)
	}
	return affected > 0, nil
}
