package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vkarkhanis/splitex/internal/models"
	"github.com/vkarkhanis/splitex/internal/storage"
)

// CreateEvent persists a new event with its predefined rate table.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().Unix()
	}
	if event.Status == "" {
		event.Status = models.EventActive
	}
	if event.FxRateMode == "" {
		event.FxRateMode = models.FxPredefined
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (id, name, currency, settlement_currency, fx_rate_mode, status,
		 require_approval, settlement_stale, plan_version, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Name, event.Currency, event.SettlementCurrency, string(event.FxRateMode),
		string(event.Status), boolToInt(event.RequireApproval), boolToInt(event.SettlementStale),
		event.PlanVersion, event.CreatedBy, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	for pair, rate := range event.PredefinedFxRates {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO event_fx_rates (event_id, pair, rate) VALUES (?, ?, ?)",
			event.ID, pair, rate.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert fx rate: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetEvent retrieves an event including its rate table and approvals.
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	event := &models.Event{}
	var fxMode, status string
	var requireApproval, stale int

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, currency, settlement_currency, fx_rate_mode, status,
		 require_approval, settlement_stale, plan_version, created_by, created_at
		 FROM events WHERE id = ?`,
		id,
	).Scan(&event.ID, &event.Name, &event.Currency, &event.SettlementCurrency, &fxMode, &status,
		&requireApproval, &stale, &event.PlanVersion, &event.CreatedBy, &event.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	event.FxRateMode = models.FxRateMode(fxMode)
	event.Status = models.EventStatus(status)
	event.RequireApproval = requireApproval == 1
	event.SettlementStale = stale == 1

	rows, err := s.db.QueryContext(ctx, "SELECT pair, rate FROM event_fx_rates WHERE event_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get fx rates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pair, raw string
		if err := rows.Scan(&pair, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan fx rate: %w", err)
		}
		rate, err := parseAmount(raw)
		if err != nil {
			return nil, err
		}
		if event.PredefinedFxRates == nil {
			event.PredefinedFxRates = make(map[string]decimal.Decimal)
		}
		event.PredefinedFxRates[pair] = rate
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fx rates: %w", err)
	}

	approvalRows, err := s.db.QueryContext(ctx,
		"SELECT entity_type, entity_id FROM event_approvals WHERE event_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get approvals: %w", err)
	}
	defer approvalRows.Close()
	for approvalRows.Next() {
		var entityType, entityID string
		if err := approvalRows.Scan(&entityType, &entityID); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		if event.SettlementApprovals == nil {
			event.SettlementApprovals = make(map[string]bool)
		}
		entity := models.Entity{Type: models.EntityType(entityType), ID: entityID}
		event.SettlementApprovals[entity.Key()] = true
	}
	if err := approvalRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate approvals: %w", err)
	}

	return event, nil
}

// UpdateEvent rewrites the event's mutable fields and its approvals set.
func (s *SQLiteStore) UpdateEvent(ctx context.Context, event *models.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE events SET name = ?, settlement_currency = ?, fx_rate_mode = ?, status = ?,
		 require_approval = ?, settlement_stale = ?, plan_version = ? WHERE id = ?`,
		event.Name, event.SettlementCurrency, string(event.FxRateMode), string(event.Status),
		boolToInt(event.RequireApproval), boolToInt(event.SettlementStale), event.PlanVersion, event.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s: %w", event.ID, storage.ErrNotFound)
	}

	if err := writeApprovals(ctx, tx, event); err != nil {
		return err
	}
	if err := writeFxRates(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteEvent removes the event and everything cascading from it, and
// terminates every open settlement in the same transaction. Settlements
// survive the delete as a payment audit trail.
func (s *SQLiteStore) DeleteEvent(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"UPDATE settlements SET status = ? WHERE event_id = ? AND status NOT IN (?, ?, ?)",
		string(models.SettlementTerminated), id,
		string(models.SettlementCompleted), string(models.SettlementTerminated), string(models.SettlementSuperseded),
	)
	if err != nil {
		return fmt.Errorf("failed to terminate settlements: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s: %w", id, storage.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AddParticipant registers a user in an event. Re-adding is a no-op.
func (s *SQLiteStore) AddParticipant(ctx context.Context, p *models.Participant) error {
	if p.JoinedAt == 0 {
		p.JoinedAt = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO participants (event_id, user_id, joined_at) VALUES (?, ?, ?)",
		p.EventID, p.UserID, p.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	return nil
}

// ListParticipants retrieves all participants for an event.
func (s *SQLiteStore) ListParticipants(ctx context.Context, eventID string) ([]models.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT event_id, user_id, joined_at FROM participants WHERE event_id = ? ORDER BY user_id",
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.EventID, &p.UserID, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return participants, nil
}

// CreateGroup persists a new group and its members.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO groups (id, event_id, name, payer_user_id, created_at) VALUES (?, ?, ?, ?, ?)",
		group.ID, group.EventID, group.Name, group.PayerUserID, group.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}

	for _, member := range group.Members {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO group_members (group_id, user_id) VALUES (?, ?)",
			group.ID, member,
		)
		if err != nil {
			return fmt.Errorf("failed to insert group member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetGroup retrieves a group including its members.
func (s *SQLiteStore) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	group := &models.Group{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, event_id, name, payer_user_id, created_at FROM groups WHERE id = ?",
		id,
	).Scan(&group.ID, &group.EventID, &group.Name, &group.PayerUserID, &group.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	if err := s.loadMembers(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// ListGroups retrieves all groups for an event with members populated.
func (s *SQLiteStore) ListGroups(ctx context.Context, eventID string) ([]models.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, event_id, name, payer_user_id, created_at FROM groups WHERE event_id = ? ORDER BY id",
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.EventID, &g.Name, &g.PayerUserID, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	for i := range groups {
		if err := s.loadMembers(ctx, &groups[i]); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func (s *SQLiteStore) loadMembers(ctx context.Context, group *models.Group) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id FROM group_members WHERE group_id = ? ORDER BY user_id", group.ID)
	if err != nil {
		return fmt.Errorf("failed to get group members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return fmt.Errorf("failed to scan group member: %w", err)
		}
		group.Members = append(group.Members, member)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate group members: %w", err)
	}
	return nil
}

func writeApprovals(ctx context.Context, tx *sql.Tx, event *models.Event) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM event_approvals WHERE event_id = ?", event.ID); err != nil {
		return fmt.Errorf("failed to clear approvals: %w", err)
	}
	for key, approved := range event.SettlementApprovals {
		if !approved {
			continue
		}
		entityType, entityID, ok := splitEntityKey(key)
		if !ok {
			continue
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO event_approvals (event_id, entity_type, entity_id) VALUES (?, ?, ?)",
			event.ID, entityType, entityID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert approval: %w", err)
		}
	}
	return nil
}

func writeFxRates(ctx context.Context, tx *sql.Tx, event *models.Event) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM event_fx_rates WHERE event_id = ?", event.ID); err != nil {
		return fmt.Errorf("failed to clear fx rates: %w", err)
	}
	for pair, rate := range event.PredefinedFxRates {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO event_fx_rates (event_id, pair, rate) VALUES (?, ?, ?)",
			event.ID, pair, rate.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert fx rate: %w", err)
		}
	}
	return nil
}

func splitEntityKey(key string) (entityType, entityID string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
