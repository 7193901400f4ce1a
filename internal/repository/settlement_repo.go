package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"solarcharge/internal/models"
)

// ErrUserNotFound indicates a missing user row.
var ErrUserNotFound = errors.New("user not found")

// SettlementRepository applies the terminal effects of a charging session.
// The three writes (session finalize, balance debit, ledger append) commit in
// a single database transaction so a concurrent reader never observes a
// partial settlement.
type SettlementRepository struct {
	db *sql.DB
}

// NewSettlementRepository returns repository.
func NewSettlementRepository(db *sql.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// Balance returns the user's current wallet balance.
func (r *SettlementRepository) Balance(ctx context.Context, userID int64) (float64, error) {
	const query = `SELECT balance FROM users WHERE id = $1`
	var balance float64
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrUserNotFound
	}
	return balance, err
}

// Adjust credits or debits a wallet outside of settlement (top-up, refund)
// and appends the matching ledger entry.
func (r *SettlementRepository) Adjust(ctx context.Context, entry *models.LedgerEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.applyLedger(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

// Settle finalizes the session, debits the wallet, and appends the ledger
// entry atomically. On any failure nothing is applied and the caller may
// retry the whole settlement.
func (r *SettlementRepository) Settle(ctx context.Context, session *models.Session, entry *models.LedgerEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const finalize = `
		UPDATE charging_sessions
		SET end_time = $2,
		    meter_stop = $3,
		    energy_delivered = $4,
		    energy_from_solar = $5,
		    energy_from_grid = $6,
		    cost_energy = $7,
		    cost_service = $8,
		    cost_total = $9,
		    status = $10,
		    stop_reason = $11,
		    updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'faulted')
	`
	result, err := tx.ExecContext(ctx, finalize,
		session.ID,
		session.EndTime,
		session.MeterStop,
		session.EnergyKWh,
		session.SolarKWh,
		session.GridKWh,
		session.EnergyCost,
		session.ServiceCost,
		session.TotalCost,
		session.Status,
		session.StopReason,
	)
	if err != nil {
		return fmt.Errorf("settle: finalize session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSessionNotFound
	}

	if err := r.applyLedger(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SettlementRepository) applyLedger(ctx context.Context, tx *sql.Tx, entry *models.LedgerEntry) error {
	const lockBalance = `SELECT balance FROM users WHERE id = $1 FOR UPDATE`
	var before float64
	if err := tx.QueryRowContext(ctx, lockBalance, entry.UserID).Scan(&before); err != nil {
		if err == sql.ErrNoRows {
			return ErrUserNotFound
		}
		return fmt.Errorf("settle: lock balance: %w", err)
	}

	after := before + entry.Amount
	entry.BalanceBefore = before
	entry.BalanceAfter = after

	const debit = `UPDATE users SET balance = $2, updated_at = NOW() WHERE id = $1`
	if _, err := tx.ExecContext(ctx, debit, entry.UserID, after); err != nil {
		return fmt.Errorf("settle: update balance: %w", err)
	}

	const insertEntry = `
		INSERT INTO payment_transactions (transaction_code, user_id, session_id, type, amount, balance_before, balance_after, payment_method, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id, created_at
	`
	if err := tx.QueryRowContext(ctx, insertEntry,
		entry.Code,
		entry.UserID,
		nullableID(entry.SessionID),
		entry.Type,
		entry.Amount,
		entry.BalanceBefore,
		entry.BalanceAfter,
		entry.Method,
		entry.Status,
	).Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return fmt.Errorf("settle: append ledger: %w", err)
	}
	return nil
}

func nullableID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}
