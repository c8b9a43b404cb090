package types

import "errors"

// Bank-level errors
var (
	// ErrInvalidBankTag is returned when a bank tag is not exactly BankTagLen bytes
	ErrInvalidBankTag = errors.New("invalid bank tag")

	// ErrUnknownBankType is returned for bank type ids outside the known set
	ErrUnknownBankType = errors.New("unknown bank type")
)
