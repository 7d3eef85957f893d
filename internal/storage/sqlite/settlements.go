package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vkarkhanis/splitex/internal/models"
	"github.com/vkarkhanis/splitex/internal/storage"
)

// SaveSettlementPlan atomically replaces the event's open plan with a new
// batch. The event row carries the optimistic token: the update only
// matches while plan_version is still event.PlanVersion-1, so a losing
// concurrent generation commits nothing and gets ErrConflict.
func (s *SQLiteStore) SaveSettlementPlan(ctx context.Context, event *models.Event, settlements []*models.Settlement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE events SET status = ?, settlement_stale = ?, plan_version = ?
		 WHERE id = ? AND plan_version = ?`,
		string(event.Status), boolToInt(event.SettlementStale), event.PlanVersion,
		event.ID, event.PlanVersion-1,
	)
	if err != nil {
		return fmt.Errorf("failed to update event for plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s plan version %d: %w", event.ID, event.PlanVersion, storage.ErrConflict)
	}

	// A regenerated plan supersedes whatever was still pending; anything
	// initiated or beyond keeps its history.
	_, err = tx.ExecContext(ctx,
		"UPDATE settlements SET status = ? WHERE event_id = ? AND status = ?",
		string(models.SettlementSuperseded), event.ID, string(models.SettlementPending),
	)
	if err != nil {
		return fmt.Errorf("failed to supersede settlements: %w", err)
	}

	if err := writeApprovals(ctx, tx, event); err != nil {
		return err
	}

	for _, settlement := range settlements {
		if settlement.ID == "" {
			settlement.ID = uuid.New().String()
		}
		settlement.PlanVersion = event.PlanVersion

		var settlementAmount, fxRate any
		if settlement.SettlementAmount != nil {
			settlementAmount = settlement.SettlementAmount.String()
		}
		if settlement.FxRate != nil {
			fxRate = settlement.FxRate.String()
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO settlements (id, event_id, plan_version,
			 from_entity_type, from_entity_id, to_entity_type, to_entity_id,
			 from_user_id, to_user_id, amount, currency,
			 settlement_amount, settlement_currency, fx_rate,
			 status, retry_count, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			settlement.ID, settlement.EventID, settlement.PlanVersion,
			string(settlement.From.Type), settlement.From.ID,
			string(settlement.To.Type), settlement.To.ID,
			settlement.FromUserID, settlement.ToUserID,
			settlement.Amount.String(), settlement.Currency,
			settlementAmount, settlement.SettlementCurrency, fxRate,
			string(settlement.Status), settlement.RetryCount, settlement.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert settlement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const settlementColumns = `id, event_id, plan_version,
	from_entity_type, from_entity_id, to_entity_type, to_entity_id,
	from_user_id, to_user_id, amount, currency,
	settlement_amount, settlement_currency, fx_rate,
	status, payment_method, payment_id, checkout_url, failure_reason,
	retry_count, created_at, initiated_at, failed_at, completed_at`

// GetSettlement retrieves a settlement by ID.
func (s *SQLiteStore) GetSettlement(ctx context.Context, id string) (*models.Settlement, error) {
	settlement, err := scanSettlement(s.db.QueryRowContext(ctx,
		"SELECT "+settlementColumns+" FROM settlements WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("settlement %s: %w", id, storage.ErrNotFound)
	}
	return settlement, err
}

// UpdateSettlement rewrites the settlement's lifecycle fields.
func (s *SQLiteStore) UpdateSettlement(ctx context.Context, settlement *models.Settlement) error {
	return writeSettlementFields(ctx, s.db, settlement)
}

// ApplySettlementCallback claims a gateway callback ID and writes the
// settlement's lifecycle fields in one transaction, so the ID is only
// consumed once the outcome is durable. Returns false without touching
// the settlement when the ID was already claimed.
func (s *SQLiteStore) ApplySettlementCallback(ctx context.Context, callbackID string, settlement *models.Settlement) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO processed_callbacks (callback_id, processed_at) VALUES (?, ?)",
		callbackID, time.Now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim callback: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, fmt.Errorf("failed to claim callback: %w", err)
	} else if n == 0 {
		return false, nil
	}

	if err := writeSettlementFields(ctx, tx, settlement); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeSettlementFields(ctx context.Context, q execer, settlement *models.Settlement) error {
	res, err := q.ExecContext(ctx,
		`UPDATE settlements SET status = ?, payment_method = ?, payment_id = ?, checkout_url = ?,
		 failure_reason = ?, retry_count = ?, initiated_at = ?, failed_at = ?, completed_at = ?
		 WHERE id = ?`,
		string(settlement.Status), settlement.PaymentMethod, settlement.PaymentID, settlement.CheckoutURL,
		settlement.FailureReason, settlement.RetryCount,
		nullableInt(settlement.InitiatedAt), nullableInt(settlement.FailedAt), nullableInt(settlement.CompletedAt),
		settlement.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update settlement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("settlement %s: %w", settlement.ID, storage.ErrNotFound)
	}
	return nil
}

// ListSettlementsByEvent retrieves all settlements for an event, newest
// plan first.
func (s *SQLiteStore) ListSettlementsByEvent(ctx context.Context, eventID string) ([]*models.Settlement, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+settlementColumns+" FROM settlements WHERE event_id = ? ORDER BY plan_version DESC, created_at, id",
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []*models.Settlement
	for rows.Next() {
		settlement, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, settlement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}
	return settlements, nil
}

func scanSettlement(row rowScanner) (*models.Settlement, error) {
	settlement := &models.Settlement{}
	var fromType, toType, amount, status string
	var settlementAmount, fxRate sql.NullString
	var initiatedAt, failedAt, completedAt sql.NullInt64

	err := row.Scan(&settlement.ID, &settlement.EventID, &settlement.PlanVersion,
		&fromType, &settlement.From.ID, &toType, &settlement.To.ID,
		&settlement.FromUserID, &settlement.ToUserID, &amount, &settlement.Currency,
		&settlementAmount, &settlement.SettlementCurrency, &fxRate,
		&status, &settlement.PaymentMethod, &settlement.PaymentID, &settlement.CheckoutURL,
		&settlement.FailureReason, &settlement.RetryCount, &settlement.CreatedAt,
		&initiatedAt, &failedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan settlement: %w", err)
	}

	settlement.From.Type = models.EntityType(fromType)
	settlement.To.Type = models.EntityType(toType)
	settlement.Status = models.SettlementStatus(status)
	if settlement.Amount, err = parseAmount(amount); err != nil {
		return nil, err
	}
	if settlementAmount.Valid {
		d, err := parseAmount(settlementAmount.String)
		if err != nil {
			return nil, err
		}
		settlement.SettlementAmount = &d
	}
	if fxRate.Valid {
		d, err := parseAmount(fxRate.String)
		if err != nil {
			return nil, err
		}
		settlement.FxRate = &d
	}
	settlement.InitiatedAt = nullableIntPtr(initiatedAt)
	settlement.FailedAt = nullableIntPtr(failedAt)
	settlement.CompletedAt = nullableIntPtr(completedAt)
	return settlement, nil
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableIntPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
