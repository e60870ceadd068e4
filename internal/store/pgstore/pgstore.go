// Package pgstore implements store.Store on Postgres through a pgx pool.
package pgstore

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/handyhub/internal/models"
	"github.com/sudo-init-do/handyhub/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{DB: pool}
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.Ping(ctx) }

func (s *Store) Close() { s.DB.Close() }

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// params collects positional arguments and hands out $n placeholders.
type params []any

func (p *params) add(v any) string {
	*p = append(*p, v)
	return "$" + strconv.Itoa(len(*p))
}

func (p *params) list(vs ...any) string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = p.add(v)
	}
	return strings.Join(out, ",")
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

const userColumns = `id, name, email, role, skills, rate, online, banned`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Skills, &u.Rate, &u.Online, &u.Banned); err != nil {
		return u, notFound(err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	return scanUser(s.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (s *Store) UpsertUser(ctx context.Context, u models.User) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO users (id, name, email, role, skills, rate, online, banned)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name, email=EXCLUDED.email, role=EXCLUDED.role, skills=EXCLUDED.skills,
			rate=EXCLUDED.rate, online=EXCLUDED.online, banned=EXCLUDED.banned`,
		u.ID, u.Name, u.Email, string(u.Role), models.NormalizeSkills(u.Skills), u.Rate, u.Online, u.Banned)
	return err
}

func (s *Store) SetOnline(ctx context.Context, id string, online bool) error {
	tag, err := s.DB.Exec(ctx, `UPDATE users SET online=$1 WHERE id=$2`, online, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListOnlineProviders(ctx context.Context) ([]models.User, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+userColumns+` FROM users
		WHERE role=$1 AND online AND NOT banned ORDER BY id`, string(models.RoleServiceProvider))
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
