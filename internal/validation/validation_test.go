package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{
			name: "simple name",
			in:   "Ada Lovelace",
			want: "Ada Lovelace",
		},
		{
			name: "trims whitespace",
			in:   "  Ada Lovelace  ",
			want: "Ada Lovelace",
		},
		{
			name: "punctuation allowed",
			in:   "O'Brien, Jr.",
			want: "O'Brien, Jr.",
		},
		{
			name: "hyphenated",
			in:   "Jean-Luc",
			want: "Jean-Luc",
		},
		{
			name: "unicode letters",
			in:   "Søren Kierkegård",
			want: "Søren Kierkegård",
		},
		{
			name:    "empty",
			in:      "",
			wantErr: ErrNameEmpty,
		},
		{
			name:    "whitespace only",
			in:      "   ",
			wantErr: ErrNameEmpty,
		},
		{
			name:    "too long",
			in:      strings.Repeat("a", 121),
			wantErr: ErrNameTooLong,
		},
		{
			name: "max length ok",
			in:   strings.Repeat("a", 120),
			want: strings.Repeat("a", 120),
		},
		{
			name:    "disallowed characters",
			in:      "Robert; DROP TABLE",
			wantErr: ErrNameInvalidChars,
		},
		{
			name:    "newline rejected",
			in:      "Ada\nLovelace",
			wantErr: ErrNameInvalidChars,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateName(tc.in)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("ValidateName(%q) error = %v, want %v", tc.in, err, tc.wantErr)
				}
				var fe *FieldError
				if !errors.As(err, &fe) || fe.Field != "name" {
					t.Errorf("ValidateName(%q) error field = %v, want name", tc.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateName(%q) error = %v, want nil", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ValidateName(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{
			name: "valid",
			in:   "ada@example.com",
			want: "ada@example.com",
		},
		{
			name: "trims whitespace",
			in:   " ada@example.com ",
			want: "ada@example.com",
		},
		{
			name:    "empty",
			in:      "",
			wantErr: ErrEmailInvalid,
		},
		{
			name:    "no at sign",
			in:      "ada.example.com",
			wantErr: ErrEmailInvalid,
		},
		{
			name:    "display name rejected",
			in:      "Ada <ada@example.com>",
			wantErr: ErrEmailInvalid,
		},
		{
			name:    "too long",
			in:      strings.Repeat("a", 250) + "@x.io",
			wantErr: ErrEmailTooLong,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateEmail(tc.in)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("ValidateEmail(%q) error = %v, want %v", tc.in, err, tc.wantErr)
				}
				var fe *FieldError
				if !errors.As(err, &fe) || fe.Field != "email" {
					t.Errorf("ValidateEmail(%q) error field = %v, want email", tc.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateEmail(%q) error = %v, want nil", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ValidateEmail(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr error
	}{
		{
			name: "plain text",
			in:   "Please mesh this plate at 32x32.",
		},
		{
			name: "empty allowed",
			in:   "",
		},
		{
			name: "newline and tab allowed",
			in:   "line one\n\tindented",
		},
		{
			name: "max length ok",
			in:   strings.Repeat("m", 2000),
		},
		{
			name:    "too long",
			in:      strings.Repeat("m", 2001),
			wantErr: ErrMessageTooLong,
		},
		{
			name:    "control character rejected",
			in:      "bad\x00byte",
			wantErr: ErrMessageInvalidChars,
		},
		{
			name:    "carriage return rejected",
			in:      "bad\rline",
			wantErr: ErrMessageInvalidChars,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateMessage(tc.in)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("ValidateMessage() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateMessage() error = %v, want nil", err)
			}
			if got != tc.in {
				t.Errorf("ValidateMessage() = %q, want input unchanged", got)
			}
		})
	}
}
