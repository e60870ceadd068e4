package sqlitestore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store"
)

const userColumns = `id, name, email, role, skills, rate, online, banned`

func scanUser(row rowScanner) (models.User, error) {
	var (
		u      models.User
		role   string
		skills string
		rate   sql.NullFloat64
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &skills, &rate, &u.Online, &u.Banned); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, store.ErrNotFound
		}
		return u, err
	}
	u.Role = models.Role(role)
	var err error
	if u.Skills, err = decodeStrings("skills", skills); err != nil {
		return u, err
	}
	if rate.Valid {
		v := rate.Float64
		u.Rate = &v
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	return scanUser(s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

// UpsertUser mirrors an identity from the identity collaborator.
func (s *Store) UpsertUser(ctx context.Context, u models.User) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO users (id, name, email, role, skills, rate, online, banned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, email=excluded.email, role=excluded.role, skills=excluded.skills,
			rate=excluded.rate, online=excluded.online, banned=excluded.banned`,
		u.ID, u.Name, u.Email, string(u.Role), encodeStrings(models.NormalizeSkills(u.Skills)), nullFloat(u.Rate), u.Online, u.Banned)
	return err
}

func (s *Store) SetOnline(ctx context.Context, id string, online bool) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE users SET online=? WHERE id=?`, online, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListOnlineProviders(ctx context.Context) ([]models.User, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users
		WHERE role=? AND online=1 AND banned=0 ORDER BY id`, string(models.RoleServiceProvider))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
