package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/onegen/bank-api/internal/domain"
)

type lookupStub struct {
	taken int
	calls int
	err   error
}

func (l *lookupStub) AccountNumberExists(ctx context.Context, accountNumber string) (bool, error) {
	l.calls++
	if l.err != nil {
		return false, l.err
	}
	return l.calls <= l.taken, nil
}

func TestLuhnCheckDigit(t *testing.T) {
	tests := []struct {
		partial string
		want    string
	}{
		{partial: "7992739871", want: "3"},
		{partial: "0000000000", want: "0"},
		{partial: "453201511283036", want: "6"},
	}

	for _, tt := range tests {
		t.Run(tt.partial, func(t *testing.T) {
			if got := luhnCheckDigit(tt.partial); got != tt.want {
				t.Fatalf("expected check digit %s, got %s", tt.want, got)
			}
			if !ValidLuhn(tt.partial + tt.want) {
				t.Fatalf("expected %s%s to pass the luhn check", tt.partial, tt.want)
			}
		})
	}

	if ValidLuhn("79927398710") {
		t.Fatal("expected altered number to fail the luhn check")
	}
	if ValidLuhn("12a4") {
		t.Fatal("expected non-digit input to fail the luhn check")
	}
}

func TestGenerateAccountNumberLayout(t *testing.T) {
	gen, err := NewLuhnAccountNumberGenerator("0123", "0001", &lookupStub{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, currency := range []domain.AccountCurrency{domain.CurrencyNaira, domain.CurrencyUSDollar, domain.CurrencyPoundSterling} {
		number, err := gen.Generate(context.Background(), currency)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(number) != 16 {
			t.Fatalf("expected 16 digits, got %q", number)
		}
		if !strings.HasPrefix(number, "01230001"+currency.NumericCode()) {
			t.Fatalf("expected bank, branch and currency prefix, got %q", number)
		}
		if !ValidLuhn(number) {
			t.Fatalf("expected %q to pass the luhn check", number)
		}
	}
}

func TestGenerateAccountNumberRetriesCollisions(t *testing.T) {
	lookup := &lookupStub{taken: 3}
	gen, _ := NewLuhnAccountNumberGenerator("0123", "0001", lookup)

	if _, err := gen.Generate(context.Background(), domain.CurrencyNaira); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lookup.calls != 4 {
		t.Fatalf("expected 4 lookups, got %d", lookup.calls)
	}
}

func TestGenerateAccountNumberExhausted(t *testing.T) {
	gen, _ := NewLuhnAccountNumberGenerator("0123", "0001", &lookupStub{taken: accountNumberMaxAttempts})

	_, err := gen.Generate(context.Background(), domain.CurrencyNaira)
	if !errors.Is(err, ErrAccountNumberExhausted) {
		t.Fatalf("expected ErrAccountNumberExhausted, got %v", err)
	}
}

func TestGenerateAccountNumberRejectsUnknownCurrency(t *testing.T) {
	gen, _ := NewLuhnAccountNumberGenerator("0123", "0001", nil)
	if _, err := gen.Generate(context.Background(), domain.AccountCurrency("yen")); err == nil {
		t.Fatal("expected error for unsupported currency")
	}
}

func TestNewLuhnAccountNumberGeneratorValidatesCodes(t *testing.T) {
	tests := []struct {
		name   string
		bank   string
		branch string
	}{
		{name: "short bank code", bank: "12", branch: "0001"},
		{name: "alpha branch code", bank: "0123", branch: "00A1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLuhnAccountNumberGenerator(tt.bank, tt.branch, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
