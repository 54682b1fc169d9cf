package domain

import "errors"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrDebtNotFound    = errors.New("debt not found")
	ErrPaymentNotFound = errors.New("payment not found")

	ErrNotTheDebtor   = errors.New("only the debtor can do this")
	ErrNotTheCreditor = errors.New("only the creditor can do this")
	ErrDebtNotPending = errors.New("debt is not pending")
	ErrDebtNotActive  = errors.New("debt is not active")

	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrExceedsRemaining  = errors.New("payment exceeds remaining amount")
	ErrPaymentConfirmed  = errors.New("payment already confirmed")
)
