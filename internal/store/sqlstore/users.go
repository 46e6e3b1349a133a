package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"pharmapos/m/domain"
	"pharmapos/m/internal/store"
)

var _ store.UserStore = (*Store)(nil)

func (s *Store) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	err := s.q.QueryRowxContext(ctx, s.rebind(`INSERT INTO users (username, email, password, role, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`), u.Username, u.Email, u.Password, u.Role, ts(s.now())).Scan(&u.ID)
	if err != nil {
		err = mapErr(err)
		if errors.Is(err, store.ErrDuplicateNumber) {
			return domain.User{}, fmt.Errorf("%w: %s", store.ErrDuplicateEmail, u.Email)
		}
		return domain.User{}, err
	}
	return s.GetUserByEmail(ctx, u.Email)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var u domain.User
	email = strings.ToLower(strings.TrimSpace(email))
	err := sqlx.GetContext(ctx, s.q, &u, s.rebind(`SELECT id, username, email, password, role, created_at FROM users WHERE email = ?`), email)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %s: %w", email, store.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, mapErr(err)
	}
	return u, nil
}

func (s *Store) UpdatePassword(ctx context.Context, id int64, hash string) error {
	res, err := s.q.ExecContext(ctx, s.rebind(`UPDATE users SET password = ? WHERE id = ?`), hash, id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return nil
}
