package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vibestream/fanventures/internal/app/domain/investment"
	"github.com/vibestream/fanventures/internal/app/domain/venture"
	"github.com/vibestream/fanventures/internal/app/faults"
	"github.com/vibestream/fanventures/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.VentureStore = (*Store)(nil)
var _ storage.InvestmentStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- VentureStore -----------------------------------------------------------

func (s *Store) CreateVenture(ctx context.Context, v venture.Venture) (venture.Venture, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return venture.Venture{}, faults.Transient("create venture", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ventures (id, owner_id, title, description, category,
			funding_goal, current_funding, funding_version,
			min_investment, max_investment, status, halted,
			expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, v.ID, v.OwnerID, v.Title, v.Description, string(v.Category),
		v.FundingGoal.String(), v.CurrentFunding.String(), v.FundingVersion,
		v.MinInvestment.String(), v.MaxInvestment.String(), string(v.Status), v.Halted,
		v.ExpiresAt, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return venture.Venture{}, faults.Transient("create venture", err)
	}

	for i := range v.Tiers {
		if v.Tiers[i].ID == "" {
			v.Tiers[i].ID = uuid.NewString()
		}
		v.Tiers[i].VentureID = v.ID
		v.Tiers[i].CreatedAt = now
		if err := insertTier(ctx, tx, v.Tiers[i]); err != nil {
			return venture.Venture{}, faults.Transient("create venture tier", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return venture.Venture{}, faults.Transient("create venture", err)
	}
	return v, nil
}

func insertTier(ctx context.Context, tx *sql.Tx, t venture.Tier) error {
	benefitsJSON, err := json.Marshal(t.Benefits)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO venture_tiers (id, venture_id, name, min_amount, max_amount,
			description, benefits, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			min_amount = EXCLUDED.min_amount,
			max_amount = EXCLUDED.max_amount,
			description = EXCLUDED.description,
			benefits = EXCLUDED.benefits
	`, t.ID, t.VentureID, t.Name, t.MinAmount.String(), t.MaxAmount.String(),
		t.Description, benefitsJSON, t.CreatedAt)
	return err
}

func (s *Store) UpdateVenture(ctx context.Context, v venture.Venture) (venture.Venture, error) {
	existing, err := s.GetVenture(ctx, v.ID)
	if err != nil {
		return venture.Venture{}, err
	}

	v.CreatedAt = existing.CreatedAt
	v.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return venture.Venture{}, faults.Transient("update venture", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE ventures
		SET title = $2, description = $3, category = $4, funding_goal = $5,
			min_investment = $6, max_investment = $7, status = $8,
			expires_at = $9, updated_at = $10
		WHERE id = $1
	`, v.ID, v.Title, v.Description, string(v.Category), v.FundingGoal.String(),
		v.MinInvestment.String(), v.MaxInvestment.String(), string(v.Status),
		v.ExpiresAt, v.UpdatedAt)
	if err != nil {
		return venture.Venture{}, faults.Transient("update venture", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return venture.Venture{}, faults.ErrNotFound
	}

	for i := range v.Tiers {
		if v.Tiers[i].ID == "" {
			v.Tiers[i].ID = uuid.NewString()
			v.Tiers[i].CreatedAt = v.UpdatedAt
		}
		v.Tiers[i].VentureID = v.ID
		if err := insertTier(ctx, tx, v.Tiers[i]); err != nil {
			return venture.Venture{}, faults.Transient("update venture tier", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return venture.Venture{}, faults.Transient("update venture", err)
	}
	v.CurrentFunding = existing.CurrentFunding
	v.FundingVersion = existing.FundingVersion
	v.Halted = existing.Halted
	return v, nil
}

const ventureColumns = `id, owner_id, title, description, category,
	funding_goal, current_funding, funding_version,
	min_investment, max_investment, status, halted,
	expires_at, created_at, updated_at`

func (s *Store) GetVenture(ctx context.Context, id string) (venture.Venture, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ventureColumns+`
		FROM ventures
		WHERE id = $1
	`, id)

	v, err := scanVenture(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return venture.Venture{}, faults.ErrNotFound
		}
		return venture.Venture{}, faults.Transient("get venture", err)
	}

	tiers, err := s.listTiers(ctx, id)
	if err != nil {
		return venture.Venture{}, faults.Transient("get venture tiers", err)
	}
	v.Tiers = tiers
	return v, nil
}

func (s *Store) ListVentures(ctx context.Context, ownerID string) ([]venture.Venture, error) {
	query := `SELECT ` + ventureColumns + ` FROM ventures ORDER BY created_at`
	args := []interface{}{}
	if ownerID != "" {
		query = `SELECT ` + ventureColumns + ` FROM ventures WHERE owner_id = $1 ORDER BY created_at`
		args = append(args, ownerID)
	}
	return s.queryVentures(ctx, query, args...)
}

func (s *Store) ListVenturesByStatus(ctx context.Context, status venture.Status) ([]venture.Venture, error) {
	return s.queryVentures(ctx, `
		SELECT `+ventureColumns+`
		FROM ventures
		WHERE status = $1
		ORDER BY created_at
	`, string(status))
}

func (s *Store) queryVentures(ctx context.Context, query string, args ...interface{}) ([]venture.Venture, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, faults.Transient("list ventures", err)
	}
	defer rows.Close()

	var result []venture.Venture
	for rows.Next() {
		v, err := scanVenture(rows)
		if err != nil {
			return nil, faults.Transient("list ventures", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (s *Store) UpdateVentureStatus(ctx context.Context, id string, status venture.Status) (venture.Venture, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE ventures SET status = $2, updated_at = $3 WHERE id = $1
	`, id, string(status), time.Now().UTC())
	if err != nil {
		return venture.Venture{}, faults.Transient("update venture status", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return venture.Venture{}, faults.ErrNotFound
	}
	return s.GetVenture(ctx, id)
}

func (s *Store) SetVentureHalted(ctx context.Context, id string, halted bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE ventures SET halted = $2, updated_at = $3 WHERE id = $1
	`, id, halted, time.Now().UTC())
	if err != nil {
		return faults.Transient("set venture halted", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return faults.ErrNotFound
	}
	return nil
}

func (s *Store) ApplyFunding(ctx context.Context, id string, delta decimal.Decimal, expectVersion int64, newStatus venture.Status) (venture.Venture, error) {
	query := `
		UPDATE ventures
		SET current_funding = current_funding + $3,
			funding_version = funding_version + 1,
			updated_at = $4
		WHERE id = $1 AND funding_version = $2
		RETURNING ` + ventureColumns
	args := []interface{}{id, expectVersion, delta.String(), time.Now().UTC()}
	if newStatus != "" {
		query = `
			UPDATE ventures
			SET current_funding = current_funding + $3,
				funding_version = funding_version + 1,
				updated_at = $4,
				status = $5
			WHERE id = $1 AND funding_version = $2
			RETURNING ` + ventureColumns
		args = append(args, string(newStatus))
	}

	// RETURNING keeps the success report in the same statement as the write;
	// no follow-up read can fail after the increment committed. The returned
	// venture carries no tiers.
	v, err := scanVenture(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either the venture is gone or the version moved; disambiguate so
			// callers can retry conflicts. Nothing was written.
			if _, getErr := s.GetVenture(ctx, id); getErr != nil {
				return venture.Venture{}, getErr
			}
			return venture.Venture{}, faults.ErrVersionConflict
		}
		return venture.Venture{}, faults.Transient("apply funding", err)
	}
	return v, nil
}

func (s *Store) listTiers(ctx context.Context, ventureID string) ([]venture.Tier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, venture_id, name, min_amount, max_amount, description, benefits, created_at
		FROM venture_tiers
		WHERE venture_id = $1
		ORDER BY min_amount
	`, ventureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []venture.Tier
	for rows.Next() {
		var (
			t           venture.Tier
			minRaw      string
			maxRaw      string
			benefitsRaw []byte
		)
		if err := rows.Scan(&t.ID, &t.VentureID, &t.Name, &minRaw, &maxRaw,
			&t.Description, &benefitsRaw, &t.CreatedAt); err != nil {
			return nil, err
		}
		if t.MinAmount, err = decimal.NewFromString(minRaw); err != nil {
			return nil, err
		}
		if t.MaxAmount, err = decimal.NewFromString(maxRaw); err != nil {
			return nil, err
		}
		if len(benefitsRaw) > 0 {
			if err := json.Unmarshal(benefitsRaw, &t.Benefits); err != nil {
				return nil, err
			}
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVenture(row rowScanner) (venture.Venture, error) {
	var (
		v          venture.Venture
		category   string
		status     string
		goalRaw    string
		currentRaw string
		minRaw     string
		maxRaw     string
		expiresAt  sql.NullTime
	)
	err := row.Scan(&v.ID, &v.OwnerID, &v.Title, &v.Description, &category,
		&goalRaw, &currentRaw, &v.FundingVersion,
		&minRaw, &maxRaw, &status, &v.Halted,
		&expiresAt, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return venture.Venture{}, err
	}
	v.Category = venture.Category(category)
	v.Status = venture.Status(status)
	if v.FundingGoal, err = decimal.NewFromString(goalRaw); err != nil {
		return venture.Venture{}, err
	}
	if v.CurrentFunding, err = decimal.NewFromString(currentRaw); err != nil {
		return venture.Venture{}, err
	}
	if v.MinInvestment, err = decimal.NewFromString(minRaw); err != nil {
		return venture.Venture{}, err
	}
	if v.MaxInvestment, err = decimal.NewFromString(maxRaw); err != nil {
		return venture.Venture{}, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		v.ExpiresAt = &t
	}
	return v, nil
}

// --- InvestmentStore ---------------------------------------------------------

const investmentColumns = `id, venture_id, supporter_id, amount, tier_id, status,
	idempotency_key, payment_ref, failure_reason, created_at, updated_at`

func (s *Store) CreateInvestment(ctx context.Context, inv investment.Investment) (investment.Investment, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO investments (id, venture_id, supporter_id, amount, tier_id,
			status, idempotency_key, payment_ref, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, inv.ID, inv.VentureID, inv.SupporterID, inv.Amount.String(), inv.TierID,
		string(inv.Status), inv.IdempotencyKey, inv.PaymentRef, inv.FailureReason,
		inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return investment.Investment{}, faults.Transient("create investment", err)
	}
	return inv, nil
}

func (s *Store) UpdateInvestment(ctx context.Context, inv investment.Investment) (investment.Investment, error) {
	inv.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE investments
		SET status = $2, payment_ref = $3, failure_reason = $4, updated_at = $5
		WHERE id = $1
	`, inv.ID, string(inv.Status), inv.PaymentRef, inv.FailureReason, inv.UpdatedAt)
	if err != nil {
		return investment.Investment{}, faults.Transient("update investment", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return investment.Investment{}, faults.ErrNotFound
	}
	return s.GetInvestment(ctx, inv.ID)
}

func (s *Store) GetInvestment(ctx context.Context, id string) (investment.Investment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+investmentColumns+` FROM investments WHERE id = $1
	`, id)
	return scanInvestmentRow(row)
}

func (s *Store) GetInvestmentByKey(ctx context.Context, key string) (investment.Investment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+investmentColumns+` FROM investments WHERE idempotency_key = $1
	`, key)
	return scanInvestmentRow(row)
}

func scanInvestmentRow(row rowScanner) (investment.Investment, error) {
	inv, err := scanInvestment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return investment.Investment{}, faults.ErrNotFound
		}
		return investment.Investment{}, faults.Transient("get investment", err)
	}
	return inv, nil
}

func (s *Store) ListInvestmentsByVenture(ctx context.Context, ventureID string) ([]investment.Investment, error) {
	return s.queryInvestments(ctx, `
		SELECT `+investmentColumns+`
		FROM investments
		WHERE venture_id = $1
		ORDER BY created_at
	`, ventureID)
}

func (s *Store) ListInvestmentsBySupporter(ctx context.Context, supporterID string) ([]investment.Investment, error) {
	return s.queryInvestments(ctx, `
		SELECT `+investmentColumns+`
		FROM investments
		WHERE supporter_id = $1
		ORDER BY created_at
	`, supporterID)
}

func (s *Store) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]investment.Investment, error) {
	return s.queryInvestments(ctx, `
		SELECT `+investmentColumns+`
		FROM investments
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
	`, cutoff)
}

func (s *Store) queryInvestments(ctx context.Context, query string, args ...interface{}) ([]investment.Investment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, faults.Transient("list investments", err)
	}
	defer rows.Close()

	var result []investment.Investment
	for rows.Next() {
		inv, err := scanInvestment(rows)
		if err != nil {
			return nil, faults.Transient("list investments", err)
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

func scanInvestment(row rowScanner) (investment.Investment, error) {
	var (
		inv       investment.Investment
		amountRaw string
		status    string
	)
	err := row.Scan(&inv.ID, &inv.VentureID, &inv.SupporterID, &amountRaw,
		&inv.TierID, &status, &inv.IdempotencyKey, &inv.PaymentRef,
		&inv.FailureReason, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return investment.Investment{}, err
	}
	inv.Status = investment.Status(status)
	if inv.Amount, err = decimal.NewFromString(amountRaw); err != nil {
		return investment.Investment{}, err
	}
	return inv, nil
}
