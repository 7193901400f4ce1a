package models

import "time"

// Ledger entry types.
const (
	LedgerTypeCharge = "charge"
	LedgerTypeTopUp  = "topup"
	LedgerTypeRefund = "refund"
)

// LedgerEntry records one wallet movement with the balance on both sides.
// Settlement appends exactly one entry per completed session.
type LedgerEntry struct {
	ID            int64     `db:"id" json:"id"`
	Code          string    `db:"transaction_code" json:"transaction_code"`
	UserID        int64     `db:"user_id" json:"user_id"`
	SessionID     int64     `db:"session_id" json:"session_id"`
	Type          string    `db:"type" json:"type"`
	Amount        float64   `db:"amount" json:"amount"`
	BalanceBefore float64   `db:"balance_before" json:"balance_before"`
	BalanceAfter  float64   `db:"balance_after" json:"balance_after"`
	Method        string    `db:"payment_method" json:"payment_method"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
