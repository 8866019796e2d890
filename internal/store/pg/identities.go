package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/ids"
)

const identityColumns = `id, email, first_name, last_name, password_hash, active, created_at, updated_at`

func scanIdentity(row interface{ Scan(...any) error }) (auth.Identity, error) {
	var id auth.Identity
	err := row.Scan(&id.ID, &id.Email, &id.FirstName, &id.LastName, &id.PasswordHash, &id.Active, &id.CreatedAt, &id.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, auth.ErrNotFound
	}
	return id, err
}

func (s *Store) CreateIdentity(ctx context.Context, id auth.Identity, roleIDs ...string) (auth.Identity, error) {
	if s.db == nil {
		return auth.Identity{}, errNoDB
	}
	if id.ID == "" {
		id.ID = ids.New()
	}
	id.Email = strings.ToLower(strings.TrimSpace(id.Email))
	id.CreatedAt = orNow(id.CreatedAt)
	if id.UpdatedAt.IsZero() {
		id.UpdatedAt = id.CreatedAt
	}
	if len(roleIDs) == 0 {
		if err := insertIdentity(ctx, s.db, id); err != nil {
			return auth.Identity{}, err
		}
		return id, nil
	}
	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if err := insertIdentity(ctx, tx, id); err != nil {
			return err
		}
		for _, roleID := range roleIDs {
			if _, err := tx.ExecContext(ctx, `
				insert into user_roles (user_id, role_id)
				values ($1, $2)
				on conflict (user_id, role_id) do nothing
			`, id.ID, roleID); err != nil {
				return mapConstraint(err, auth.ErrNotFound)
			}
		}
		return nil
	})
	if err != nil {
		return auth.Identity{}, err
	}
	return id, nil
}

func insertIdentity(ctx context.Context, db DBTX, id auth.Identity) error {
	_, err := db.ExecContext(ctx, `
		insert into users (`+identityColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id.ID, id.Email, id.FirstName, id.LastName, id.PasswordHash, id.Active, id.CreatedAt, id.UpdatedAt)
	if err != nil {
		return mapConstraint(err, auth.ErrNotFound)
	}
	return nil
}

func (s *Store) IdentityByID(ctx context.Context, id string) (auth.Identity, error) {
	if s.db == nil {
		return auth.Identity{}, errNoDB
	}
	return scanIdentity(s.db.QueryRowContext(ctx, `select `+identityColumns+` from users where id = $1`, id))
}

func (s *Store) IdentityByEmail(ctx context.Context, email string) (auth.Identity, error) {
	if s.db == nil {
		return auth.Identity{}, errNoDB
	}
	email = strings.ToLower(strings.TrimSpace(email))
	return scanIdentity(s.db.QueryRowContext(ctx, `select `+identityColumns+` from users where email = $1`, email))
}

func (s *Store) SetIdentityActive(ctx context.Context, id string, active bool) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `update users set active = $2, updated_at = now() where id = $1`, id, active)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) IdentitiesWithRole(ctx context.Context, roleID string) ([]auth.Identity, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select u.id, u.email, u.first_name, u.last_name, u.password_hash, u.active, u.created_at, u.updated_at
		from users u
		join user_roles ur on ur.user_id = u.id
		where ur.role_id = $1
		order by u.email
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, rows.Err()
}
