package errs

import (
	"errors"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "field and message",
			err: &ValidationError{
				Field:   "date",
				Message: "is required",
			},
			want: "validation error on field date: is required",
		},
		{
			name: "empty field",
			err: &ValidationError{
				Field:   "",
				Message: "invalid",
			},
			want: "validation error on field : invalid",
		},
		{
			name: "formatted",
			err:  Invalid("word_count", "must be an integer, got %q", "many"),
			want: `validation error on field word_count: must be an integer, got "many"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("ValidationError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseError(t *testing.T) {
	cause := errors.New("mapping values are not allowed")
	err := &ParseError{Path: "2024/2024-01-15.md", Line: 3, Err: cause}

	want := "parse error in 2024/2024-01-15.md at line 3: mapping values are not allowed"
	if got := err.Error(); got != want {
		t.Errorf("ParseError.Error() = %v, want %v", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("ParseError should unwrap to its cause")
	}
	if !IsParse(WrapError(err, "ingest")) {
		t.Error("IsParse() should see through wrapping")
	}

	noLine := &ParseError{Err: cause}
	if got := noLine.Error(); got != "parse error in <document>: mapping values are not allowed" {
		t.Errorf("ParseError.Error() without location = %v", got)
	}
}

func TestDatabaseError(t *testing.T) {
	err := NotFound("person", int64(7))
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFound() should match ErrNotFound")
	}
	if !IsDatabase(err) {
		t.Error("NotFound() should be a DatabaseError")
	}
	if got, want := err.Error(), "database error: get person 7: not found"; got != want {
		t.Errorf("DatabaseError.Error() = %v, want %v", got, want)
	}

	if Database("create", "entry", nil, nil) != nil {
		t.Error("Database(nil) should be nil")
	}

	wrapped := Database("create", "entry", "a.md", err)
	if wrapped != err {
		t.Error("Database() should not double-wrap an existing DatabaseError")
	}

	plain := Database("create", "entry", nil, ErrConflict)
	if got, want := plain.Error(), "database error: create entry: conflict"; got != want {
		t.Errorf("DatabaseError.Error() = %v, want %v", got, want)
	}
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		msg     string
		wantNil bool
		wantMsg string
	}{
		{
			name:    "nil error",
			err:     nil,
			msg:     "context",
			wantNil: true,
		},
		{
			name:    "wrapped error",
			err:     errors.New("original error"),
			msg:     "context",
			wantNil: false,
			wantMsg: "context: original error",
		},
		{
			name:    "empty message",
			err:     errors.New("original error"),
			msg:     "",
			wantNil: false,
			wantMsg: ": original error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WrapError(tt.err, tt.msg)
			if tt.wantNil {
				if got != nil {
					t.Errorf("WrapError() = %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Errorf("WrapError() = nil, want error")
				return
			}
			if got.Error() != tt.wantMsg {
				t.Errorf("WrapError() = %v, want %v", got.Error(), tt.wantMsg)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("WrapError() should wrap original error")
			}
		})
	}
}

func TestIsValidation(t *testing.T) {
	if !IsValidation(WrapError(Invalid("date", "missing"), "parse")) {
		t.Error("IsValidation() should see through wrapping")
	}
	if IsValidation(errors.New("plain")) {
		t.Error("IsValidation() should be false for plain errors")
	}
}
