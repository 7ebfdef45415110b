package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/walletgate/walletgate/internal/auth/domain"
)

type identitiesRepo struct {
	db *sql.DB
}

const identityColumns = `id, username, email, address, ens_name, blocked, link_secret, last_login_at, created_at, updated_at`

func (r *identitiesRepo) GetByID(ctx context.Context, id int64) (domain.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = ?`, id)
	return scanIdentity(row)
}

func (r *identitiesRepo) GetByAddress(ctx context.Context, address string) (domain.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE address = ?`, address)
	return scanIdentity(row)
}

func (r *identitiesRepo) GetByUsername(ctx context.Context, username string) (domain.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE username = ?`, username)
	return scanIdentity(row)
}

func (r *identitiesRepo) GetByEmail(ctx context.Context, email string) (domain.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE email = ?`, email)
	return scanIdentity(row)
}

func (r *identitiesRepo) Create(ctx context.Context, identity domain.Identity) (int64, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (username, email, address, ens_name, blocked, link_secret, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		identity.Username, identity.Email, identity.Address, identity.ENSName,
		identity.Blocked, identity.LinkSecret, now, now,
	)
	if err != nil {
		return 0, mapConstraint(err)
	}
	return res.LastInsertId()
}

func (r *identitiesRepo) UpdateUsername(ctx context.Context, id int64, username string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities SET username = ?, updated_at = ? WHERE id = ?`,
		username, time.Now().UTC(), id)
	return mapConstraint(err)
}

func (r *identitiesRepo) UpdateEmail(ctx context.Context, id int64, email string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities SET email = ?, updated_at = ? WHERE id = ?`,
		email, time.Now().UTC(), id)
	return mapConstraint(err)
}

func (r *identitiesRepo) UpdateENSName(ctx context.Context, id int64, ensName string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities SET ens_name = ?, updated_at = ? WHERE id = ?`,
		ensName, time.Now().UTC(), id)
	return err
}

func (r *identitiesRepo) SetLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities SET last_login_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id)
	return err
}

func (r *identitiesRepo) SetBlocked(ctx context.Context, id int64, blocked bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities SET blocked = ?, updated_at = ? WHERE id = ?`,
		blocked, time.Now().UTC(), id)
	return err
}

func (r *identitiesRepo) DeleteNeverActivated(ctx context.Context, cutoff time.Time, placeholderDomain string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM identities
		 WHERE last_login_at IS NULL AND created_at < ? AND email LIKE ?`,
		cutoff.UTC(), "%@"+placeholderDomain)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (domain.Identity, error) {
	var (
		identity  domain.Identity
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&identity.ID,
		&identity.Username,
		&identity.Email,
		&identity.Address,
		&identity.ENSName,
		&identity.Blocked,
		&identity.LinkSecret,
		&lastLogin,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return domain.Identity{}, mapNotFound(err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		identity.LastLoginAt = &t
	}
	return identity, nil
}
