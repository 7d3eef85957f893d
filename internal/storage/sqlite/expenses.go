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

// CreateExpense persists a new expense with its splits and behalf-of
// entries.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertExpense(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateExpense rewrites the expense and its split rows.
func (s *SQLiteStore) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", expense.ID)
	if err != nil {
		return fmt.Errorf("failed to replace expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %s: %w", expense.ID, storage.ErrNotFound)
	}

	if err := insertExpense(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertExpense(ctx context.Context, tx *sql.Tx, expense *models.Expense) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO expenses (id, event_id, title, amount, currency, paid_by, is_private, split_type, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.EventID, expense.Title, expense.Amount.String(), expense.Currency,
		expense.PaidBy, boolToInt(expense.IsPrivate), string(expense.SplitType),
		expense.CreatedBy, expense.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	for _, split := range expense.Splits {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO expense_splits (expense_id, entity_type, entity_id, amount, ratio) VALUES (?, ?, ?, ?, ?)",
			expense.ID, string(split.Entity.Type), split.Entity.ID, split.Amount.String(), split.Ratio.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense split: %w", err)
		}
	}

	for _, entity := range expense.PaidOnBehalfOf {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO expense_behalf (expense_id, entity_type, entity_id) VALUES (?, ?, ?)",
			expense.ID, string(entity.Type), entity.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert behalf entry: %w", err)
		}
	}
	return nil
}

// GetExpense retrieves an expense by ID including splits.
func (s *SQLiteStore) GetExpense(ctx context.Context, id string) (*models.Expense, error) {
	expense, err := s.scanExpense(s.db.QueryRowContext(ctx,
		`SELECT id, event_id, title, amount, currency, paid_by, is_private, split_type, created_by, created_at
		 FROM expenses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadSplits(ctx, expense); err != nil {
		return nil, err
	}
	return expense, nil
}

// DeleteExpense removes an expense by ID.
func (s *SQLiteStore) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// ListExpenses retrieves all expenses for an event with splits populated.
func (s *SQLiteStore) ListExpenses(ctx context.Context, eventID string) ([]models.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, title, amount, currency, paid_by, is_private, split_type, created_by, created_at
		 FROM expenses WHERE event_id = ? ORDER BY created_at, id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []models.Expense
	for rows.Next() {
		expense, err := s.scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *expense)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	for i := range expenses {
		if err := s.loadSplits(ctx, &expenses[i]); err != nil {
			return nil, err
		}
	}
	return expenses, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanExpense(row rowScanner) (*models.Expense, error) {
	expense := &models.Expense{}
	var amount, splitType string
	var isPrivate int
	err := row.Scan(&expense.ID, &expense.EventID, &expense.Title, &amount, &expense.Currency,
		&expense.PaidBy, &isPrivate, &splitType, &expense.CreatedBy, &expense.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan expense: %w", err)
	}
	expense.Amount, err = parseAmount(amount)
	if err != nil {
		return nil, err
	}
	expense.IsPrivate = isPrivate == 1
	expense.SplitType = models.SplitType(splitType)
	return expense, nil
}

func (s *SQLiteStore) loadSplits(ctx context.Context, expense *models.Expense) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_type, entity_id, amount, ratio FROM expense_splits
		 WHERE expense_id = ? ORDER BY entity_type, entity_id`,
		expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get expense splits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entityType, entityID, amount, ratio string
		if err := rows.Scan(&entityType, &entityID, &amount, &ratio); err != nil {
			return fmt.Errorf("failed to scan expense split: %w", err)
		}
		split := models.ExpenseSplit{
			Entity: models.Entity{Type: models.EntityType(entityType), ID: entityID},
		}
		if split.Amount, err = parseAmount(amount); err != nil {
			return err
		}
		if split.Ratio, err = parseAmount(ratio); err != nil {
			return err
		}
		expense.Splits = append(expense.Splits, split)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate expense splits: %w", err)
	}

	behalfRows, err := s.db.QueryContext(ctx,
		"SELECT entity_type, entity_id FROM expense_behalf WHERE expense_id = ? ORDER BY entity_type, entity_id",
		expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get behalf entries: %w", err)
	}
	defer behalfRows.Close()

	for behalfRows.Next() {
		var entityType, entityID string
		if err := behalfRows.Scan(&entityType, &entityID); err != nil {
			return fmt.Errorf("failed to scan behalf entry: %w", err)
		}
		expense.PaidOnBehalfOf = append(expense.PaidOnBehalfOf,
			models.Entity{Type: models.EntityType(entityType), ID: entityID})
	}
	if err := behalfRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate behalf entries: %w", err)
	}
	return nil
}
