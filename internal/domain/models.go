package domain

import "time"

type User struct {
	ID          int64
	TelegramID  *int64 // nil for placeholders created from a mention
	Username    string // lower-case handle without '@', may be empty
	DisplayName string
	Locale      string
	CreatedAt   time.Time
}

// Registered reports whether the user has talked to the bot at least once.
func (u User) Registered() bool { return u.TelegramID != nil }

// Mention returns "@handle" or the display name for users without a handle.
func (u User) Mention() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return "unknown"
}

type TrustEdge struct {
	TrusterID int64
	TrustedID int64
	CreatedAt time.Time
}

type DebtStatus string

const (
	DebtPending  DebtStatus = "pending"
	DebtActive   DebtStatus = "active"
	DebtPaid     DebtStatus = "paid"
	DebtRejected DebtStatus = "rejected"
)

// Final reports whether no further transition is allowed.
func (s DebtStatus) Final() bool { return s == DebtPaid || s == DebtRejected }

type Debt struct {
	ID          int64
	CreditorID  int64
	DebtorID    int64
	AmountCents int64
	Description string
	Status      DebtStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
	SettledAt   *time.Time
}

// Counterparty returns the other side of the debt relative to userID.
func (d Debt) Counterparty(userID int64) int64 {
	if d.CreditorID == userID {
		return d.DebtorID
	}
	return d.CreditorID
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending_confirmation"
	PaymentConfirmed PaymentStatus = "confirmed"
)

type Payment struct {
	ID          int64
	DebtID      int64
	AmountCents int64
	Status      PaymentStatus
	CreatedAt   time.Time
	ConfirmedAt *time.Time
}

// Balance is the net position of one user against a single counterparty.
// Positive NetCents means the counterparty owes the user.
type Balance struct {
	CounterpartyID int64
	NetCents       int64
}

type Summary struct {
	UserID    int64
	LentCents int64
	OweCents  int64
	NetCents  int64
	Balances  []Balance
}
