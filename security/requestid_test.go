package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateRequestID(t *testing.T) {
	a := GenerateRequestID()
	b := GenerateRequestID()

	if a == b {
		t.Error("request IDs should be unique")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("GenerateRequestID() = %q is not a UUID: %v", a, err)
	}
	if !requestIDPattern.MatchString(a) {
		t.Errorf("generated ID %q does not pass validation", a)
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	if got := GetRequestID(ctx); got != "" {
		t.Errorf("GetRequestID() on empty context = %q, want empty", got)
	}

	ctx = WithRequestID(ctx, "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID() = %q, want %q", got, "req-123")
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		existingHeader string
		expectNew      bool
	}{
		{"generates new ID when not present", "", true},
		{"preserves valid upstream ID", "upstream-request-id-xyz", false},
		{"rejects CRLF injection", "id\r\nX-Injected: evil", true},
		{"rejects spaces", "id with spaces", true},
		{"rejects excessively long ID", strings.Repeat("a", 129), true},
		{"rejects markup", "<script>alert(1)</script>", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/authorize", nil)
			if tt.existingHeader != "" {
				req.Header.Set(RequestIDHeader, tt.existingHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			responseID := rec.Header().Get(RequestIDHeader)
			if responseID == "" || captured == "" {
				t.Fatal("expected request ID in response header and context")
			}
			if responseID != captured {
				t.Errorf("response header %q != context %q", responseID, captured)
			}

			if tt.expectNew {
				if captured == tt.existingHeader {
					t.Error("expected a new request ID")
				}
				if _, err := uuid.Parse(captured); err != nil {
					t.Errorf("generated ID %q is not a UUID", captured)
				}
			} else if captured != tt.existingHeader {
				t.Errorf("request ID = %q, want %q", captured, tt.existingHeader)
			}
		})
	}
}
