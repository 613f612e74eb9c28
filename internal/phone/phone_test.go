package phone

import (
	"errors"
	"fmt"
	"testing"

	"github.com/user/smsrelay/internal/types"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"2345678900", true},
		{"(234) 567-8900", true},
		{"234.567.8900", true},
		{"1-234-567-8900", true},
		{"+1 234 567 8900", true},
		{"0345678900", false},
		{"1345678900", false},
		{"2340678900", false},
		{"2341678900", false},
		{"12340678900", false},
		{"22345678900", false},
		{"234567890", false},
		{"", false},
		{"call me", false},
	}
	for _, tt := range tests {
		if got := IsValid(tt.raw); got != tt.want {
			t.Errorf("IsValid(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"2345678900", "+12345678900", true},
		{"(234) 567-8900", "+12345678900", true},
		{"12345678900", "+12345678900", true},
		{"22345678900", "", false},
		{"123456789", "", false},
		{"123456789012", "", false},
	}
	for _, tt := range tests {
		got, ok := Format(tt.raw)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Format(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestValidTenDigitNumbersFormat(t *testing.T) {
	for area := 2; area <= 9; area++ {
		for exchange := 2; exchange <= 9; exchange++ {
			digits := fmt.Sprintf("%d00%d001234", area, exchange)
			if !IsValid(digits) {
				t.Fatalf("expected %s to be valid", digits)
			}
			got, ok := Format(digits)
			if !ok || got != "+1"+digits {
				t.Fatalf("Format(%s) = (%q, %v)", digits, got, ok)
			}
			got, ok = Format("1" + digits)
			if !ok || got != "+1"+digits {
				t.Fatalf("Format(1%s) = (%q, %v)", digits, got, ok)
			}
		}
	}
}

func TestFormatRejectsWrongLengths(t *testing.T) {
	for n := 0; n <= 14; n++ {
		if n == 10 || n == 11 {
			continue
		}
		digits := ""
		for i := 0; i < n; i++ {
			digits += "5"
		}
		if _, ok := Format("x" + digits + "-"); ok {
			t.Errorf("expected no canonical form for %d digits", n)
		}
	}
}

func TestCanonical(t *testing.T) {
	got, err := Canonical("(234) 567-8900")
	if err != nil {
		t.Fatal(err)
	}
	if got != "+12345678900" {
		t.Errorf("expected +12345678900, got %q", got)
	}

	if _, err := Canonical("555-0100"); !errors.Is(err, types.ErrInvalidPhone) {
		t.Errorf("expected ErrInvalidPhone, got %v", err)
	}
}

func TestSender(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"(234) 567-8900", "+12345678900", false},
		{"+44 20 7946 0958", "+442079460958", false},
		{"12", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := Sender(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("Sender(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Sender(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
