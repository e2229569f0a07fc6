package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/onegen/bank-api/internal/domain"
)

const (
	accountNumberSerialDigits = 4
	accountNumberMaxAttempts  = 10
)

var ErrAccountNumberExhausted = errors.New("could not generate a unique account number")

// AccountNumberGenerator issues account numbers that do not collide with existing ones.
type AccountNumberGenerator interface {
	Generate(ctx context.Context, currency domain.AccountCurrency) (string, error)
}

// AccountNumberLookup reports whether an account number is already issued.
type AccountNumberLookup interface {
	AccountNumberExists(ctx context.Context, accountNumber string) (bool, error)
}

// LuhnAccountNumberGenerator builds 16-digit numbers as
// bank code (4) + branch code (4) + ISO 4217 numeric currency (3) + random serial (4) + Luhn check digit.
type LuhnAccountNumberGenerator struct {
	bankCode   string
	branchCode string
	lookup     AccountNumberLookup
	random     io.Reader
}

func NewLuhnAccountNumberGenerator(bankCode, branchCode string, lookup AccountNumberLookup) (*LuhnAccountNumberGenerator, error) {
	bankCode = strings.TrimSpace(bankCode)
	branchCode = strings.TrimSpace(branchCode)
	if !isDigits(bankCode, 4) {
		return nil, fmt.Errorf("bank code must be 4 digits, got %q", bankCode)
	}
	if !isDigits(branchCode, 4) {
		return nil, fmt.Errorf("branch code must be 4 digits, got %q", branchCode)
	}
	return &LuhnAccountNumberGenerator{
		bankCode:   bankCode,
		branchCode: branchCode,
		lookup:     lookup,
		random:     rand.Reader,
	}, nil
}

// Generate returns an unused account number for currency, retrying on collision.
func (g *LuhnAccountNumberGenerator) Generate(ctx context.Context, currency domain.AccountCurrency) (string, error) {
	code := currency.NumericCode()
	if code == "" {
		return "", fmt.Errorf("unsupported currency %q", currency)
	}

	limit := big.NewInt(1)
	for i := 0; i < accountNumberSerialDigits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}

	for attempt := 0; attempt < accountNumberMaxAttempts; attempt++ {
		serial, err := rand.Int(g.random, limit)
		if err != nil {
			return "", fmt.Errorf("failed to draw account serial: %w", err)
		}
		partial := fmt.Sprintf("%s%s%s%0*d", g.bankCode, g.branchCode, code, accountNumberSerialDigits, serial.Int64())
		number := partial + luhnCheckDigit(partial)

		if g.lookup == nil {
			return number, nil
		}
		exists, err := g.lookup.AccountNumberExists(ctx, number)
		if err != nil {
			return "", fmt.Errorf("failed to check account number: %w", err)
		}
		if !exists {
			return number, nil
		}
	}
	return "", ErrAccountNumberExhausted
}

// luhnCheckDigit computes the digit that makes partial+digit pass the Luhn check.
func luhnCheckDigit(partial string) string {
	sum := 0
	double := true
	for i := len(partial) - 1; i >= 0; i-- {
		d := int(partial[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return fmt.Sprintf("%d", (10-sum%10)%10)
}

// ValidLuhn reports whether number is all digits and passes the Luhn check.
func ValidLuhn(number string) bool {
	if len(number) < 2 || !isDigits(number, len(number)) {
		return false
	}
	return luhnCheckDigit(number[:len(number)-1]) == number[len(number)-1:]
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
