package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid JSON array",
			body:    `["SET","foo","bar"]`,
			wantErr: false,
		},
		{
			name:    "empty body",
			body:    "",
			wantErr: true,
			errMsg:  "request body is empty",
		},
		{
			name:    "invalid JSON",
			body:    `[invalid]`,
			wantErr: true,
			errMsg:  "invalid JSON",
		},
		{
			name:    "trailing data",
			body:    `["PING"] {}`,
			wantErr: true,
			errMsg:  "single JSON value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/redis/i", strings.NewReader(tt.body))
			var dst []any
			err := Decode(req, &dst)
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error to contain %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestValidateUUID(t *testing.T) {
	if !ValidateUUID("123e4567-e89b-12d3-a456-426614174000") {
		t.Error("expected valid UUID to pass")
	}
	if ValidateUUID("not-a-uuid") {
		t.Error("expected invalid UUID to fail")
	}
	if ValidateUUID("") {
		t.Error("expected empty string to fail")
	}
}

func TestValidateNonNegativeInt(t *testing.T) {
	if !ValidateNonNegativeInt(0) {
		t.Error("expected 0 to be valid")
	}
	if !ValidateNonNegativeInt(60) {
		t.Error("expected 60 to be valid")
	}
	if ValidateNonNegativeInt(-1) {
		t.Error("expected -1 to be invalid")
	}
}
