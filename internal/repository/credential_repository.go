package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// SecretSealer encrypts a secret bound to its record id.
type SecretSealer interface {
	Seal(plaintext []byte, recordID string) ([]byte, error)
}

// CredentialRepository persists company credentials. Secrets are sealed
// here and nowhere else; plaintext never reaches the database.
type CredentialRepository interface {
	Create(ctx context.Context, cred *domain.CompanyCredential) error
	Update(ctx context.Context, cred *domain.CompanyCredential) error
	Delete(ctx context.Context, company, id string) error
	GetByID(ctx context.Context, company, id string) (*domain.CompanyCredential, error)
	ListByCompany(ctx context.Context, company string, kind domain.CredentialKind) ([]domain.CompanyCredential, error)
}

type credentialRepository struct {
	pool   *pgxpool.Pool
	sealer SecretSealer
}

// NewCredentialRepository builds repository.
func NewCredentialRepository(pool *pgxpool.Pool, sealer SecretSealer) CredentialRepository {
	return &credentialRepository{pool: pool, sealer: sealer}
}

const credentialColumns = `id, company_name, kind, label, type, host, port, username, notes, secret_sealed, created_at, updated_at`

func (r *credentialRepository) Create(ctx context.Context, cred *domain.CompanyCredential) error {
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	sealed, _, err := SealSecret(r.sealer, cred)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO company_credentials (id, company_name, kind, label, type, host, port, username, notes, secret_sealed)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING created_at, updated_at`
	if err := r.pool.QueryRow(ctx, query,
		cred.ID,
		cred.CompanyName,
		cred.Kind,
		cred.Label,
		cred.Type,
		cred.Host,
		cred.Port,
		cred.Username,
		cred.Notes,
		sealed,
	).Scan(&cred.CreatedAt, &cred.UpdatedAt); err != nil {
		return err
	}
	cred.Secret.MarkSealed(sealed)
	return nil
}

func (r *credentialRepository) Update(ctx context.Context, cred *domain.CompanyCredential) error {
	sealed, modified, err := SealSecret(r.sealer, cred)
	if err != nil {
		return err
	}
	const query = `
        UPDATE company_credentials
        SET label=$1, type=$2, host=$3, port=$4, username=$5, notes=$6,
            secret_sealed = CASE WHEN $7::boolean THEN $8::bytea ELSE secret_sealed END, updated_at=NOW()
        WHERE id=$9 AND company_name=$10
        RETURNING updated_at`
	if err := r.pool.QueryRow(ctx, query,
		cred.Label,
		cred.Type,
		cred.Host,
		cred.Port,
		cred.Username,
		cred.Notes,
		modified,
		sealed,
		cred.ID,
		cred.CompanyName,
	).Scan(&cred.UpdatedAt); err != nil {
		return normalizeErr(err)
	}
	if modified {
		cred.Secret.MarkSealed(sealed)
	}
	return nil
}

func (r *credentialRepository) Delete(ctx context.Context, company, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM company_credentials WHERE id=$1 AND company_name=$2`, id, company)
	if err != nil {
		return normalizeErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *credentialRepository) GetByID(ctx context.Context, company, id string) (*domain.CompanyCredential, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM company_credentials WHERE id=$1 AND company_name=$2`, id, company)
	cred, err := scanCredential(row)
	if err != nil {
		return nil, normalizeErr(err)
	}
	return cred, nil
}

func (r *credentialRepository) ListByCompany(ctx context.Context, company string, kind domain.CredentialKind) ([]domain.CompanyCredential, error) {
	const query = `SELECT ` + credentialColumns + ` FROM company_credentials
        WHERE company_name=$1 AND kind=$2 ORDER BY label ASC`
	rows, err := r.pool.Query(ctx, query, company, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.CompanyCredential{}
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *cred)
	}
	return result, rows.Err()
}

// SealSecret returns the bytes to persist for a modified secret. An
// unmodified secret reports modified=false and must be left as stored.
func SealSecret(sealer SecretSealer, cred *domain.CompanyCredential) (sealed []byte, modified bool, err error) {
	if !cred.Secret.Modified() {
		return cred.Secret.Sealed, false, nil
	}
	if cred.Secret.Plaintext() == "" {
		return nil, true, nil
	}
	sealed, err = sealer.Seal([]byte(cred.Secret.Plaintext()), cred.ID)
	if err != nil {
		return nil, false, fmt.Errorf("seal credential %s: %w", cred.ID, err)
	}
	return sealed, true, nil
}

func scanCredential(row pgx.Row) (*domain.CompanyCredential, error) {
	var cred domain.CompanyCredential
	if err := row.Scan(
		&cred.ID,
		&cred.CompanyName,
		&cred.Kind,
		&cred.Label,
		&cred.Type,
		&cred.Host,
		&cred.Port,
		&cred.Username,
		&cred.Notes,
		&cred.Secret.Sealed,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &cred, nil
}
