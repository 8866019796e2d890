package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/ids"
)

const roleColumns = `id, name, description, created_at, updated_at`

func scanRole(row interface{ Scan(...any) error }) (auth.Role, error) {
	var (
		role auth.Role
		desc sql.NullString
	)
	err := row.Scan(&role.ID, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Role{}, auth.ErrNotFound
	}
	role.Description = desc.String
	return role, err
}

func collectRoles(rows *sql.Rows) ([]auth.Role, error) {
	defer rows.Close()
	var result []auth.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	return result, rows.Err()
}

func collectPermissions(rows *sql.Rows) ([]auth.Permission, error) {
	defer rows.Close()
	var result []auth.Permission
	for rows.Next() {
		var (
			p    auth.Permission
			desc sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &desc, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Description = desc.String
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) CreateRole(ctx context.Context, role auth.Role) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errNoDB
	}
	if role.ID == "" {
		role.ID = ids.New()
	}
	role.CreatedAt = orNow(role.CreatedAt)
	if role.UpdatedAt.IsZero() {
		role.UpdatedAt = role.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		insert into roles (`+roleColumns+`)
		values ($1, $2, $3, $4, $5)
	`, role.ID, role.Name, nullIfEmpty(role.Description), role.CreatedAt, role.UpdatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return auth.Role{}, auth.ErrConflict
	}
	if err != nil {
		return auth.Role{}, err
	}
	return role, nil
}

func (s *Store) RoleByID(ctx context.Context, id string) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errNoDB
	}
	return scanRole(s.db.QueryRowContext(ctx, `select `+roleColumns+` from roles where id = $1`, id))
}

func (s *Store) RoleByName(ctx context.Context, name string) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errNoDB
	}
	return scanRole(s.db.QueryRowContext(ctx, `select `+roleColumns+` from roles where name = $1`, name))
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select `+roleColumns+` from roles order by name`)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

func (s *Store) UpdateRole(ctx context.Context, id string, upd auth.RoleUpdate) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errNoDB
	}

	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	if upd.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Description))
		idx++
	}
	if len(setClauses) > 0 {
		setClauses = append(setClauses, "updated_at = now()")
		query := fmt.Sprintf(`update roles set %s where id = $%d`, strings.Join(setClauses, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return auth.Role{}, err
		}
		if aff, err := res.RowsAffected(); err == nil && aff == 0 {
			return auth.Role{}, auth.ErrNotFound
		}
	}
	return s.RoleByID(ctx, id)
}

func (s *Store) DeleteRole(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	// user_roles references roles with on delete restrict.
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return mapConstraint(err, auth.ErrConflict)
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

func (s *Store) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	return withTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1 for update`, roleID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return auth.ErrNotFound
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
			return err
		}
		for _, permID := range permissionIDs {
			if _, err := tx.ExecContext(ctx, `
				insert into role_permissions (role_id, permission_id)
				values ($1, $2)
				on conflict do nothing
			`, roleID, permID); err != nil {
				if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
					return fmt.Errorf("%w: permission %s not found", auth.ErrNotFound, permID)
				}
				return err
			}
		}
		return nil
	})
}

func (s *Store) AssignRole(ctx context.Context, identityID, roleID string) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict (user_id, role_id) do nothing
	`, identityID, roleID)
	if err != nil {
		return mapConstraint(err, auth.ErrNotFound)
	}
	return nil
}

func (s *Store) SetIdentityRoles(ctx context.Context, identityID string, roleIDs []string) error {
	return withTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `select 1 from users where id = $1 for update`, identityID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return auth.ErrNotFound
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, identityID); err != nil {
			return err
		}
		for _, roleID := range roleIDs {
			if _, err := tx.ExecContext(ctx, `
				insert into user_roles (user_id, role_id)
				values ($1, $2)
				on conflict do nothing
			`, identityID, roleID); err != nil {
				return mapConstraint(err, auth.ErrNotFound)
			}
		}
		return nil
	})
}

func (s *Store) EnsurePermissions(ctx context.Context, perms []auth.Permission) error {
	return withTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		for _, p := range perms {
			id := p.ID
			if id == "" {
				id = ids.New()
			}
			if _, err := tx.ExecContext(ctx, `
				insert into permissions (id, name, description, created_at)
				values ($1, $2, $3, $4)
				on conflict (name) do nothing
			`, id, p.Name, nullIfEmpty(p.Description), orNow(p.CreatedAt)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select id, name, description, created_at from permissions order by name`)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

func (s *Store) RolesForIdentity(ctx context.Context, identityID string) ([]auth.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.description, r.created_at, r.updated_at
		from roles r
		join user_roles ur on ur.role_id = r.id
		where ur.user_id = $1
		order by r.name
	`, identityID)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

func (s *Store) PermissionsForRoles(ctx context.Context, roleIDs []string) ([]auth.Permission, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	if len(roleIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(roleIDs))
	args := make([]any, len(roleIDs))
	for i, id := range roleIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.id, p.name, p.description, p.created_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id in (`+strings.Join(placeholders, ", ")+`)
		order by p.name
	`, args...)
	if err != nil {
		return nil, err
	}
	return collectPermissions(rows)
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
