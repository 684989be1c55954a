package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/domain"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusOK, map[string]string{"message": "success"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"unauthenticated", domain.ErrUnauthenticated, http.StatusUnauthorized, MessageUnauthenticated},
		{"tenant mismatch", fmt.Errorf("resolve: %w", domain.ErrTenantMismatch), http.StatusForbidden, MessageForbidden},
		{"permission denied", domain.ErrPermissionDenied, http.StatusForbidden, MessageForbidden},
		{"duplicate membership", domain.ErrDuplicateMembership, http.StatusBadRequest, domain.ErrDuplicateMembership.Error()},
		{"invalid role", fmt.Errorf("%w: %q", domain.ErrInvalidRole, "root"), http.StatusBadRequest, `invalid role: "root"`},
		{"last owner", domain.ErrLastOwnerViolation, http.StatusBadRequest, domain.ErrLastOwnerViolation.Error()},
		{"slug taken", domain.ErrSlugTaken, http.StatusBadRequest, domain.ErrSlugTaken.Error()},
		{"not found", fmt.Errorf("failed to get tenant: %w", domain.ErrNotFound), http.StatusNotFound, MessageNotFound},
		{"internal", errors.New("pq: connection refused"), http.StatusInternalServerError, MessageInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			status := WriteDomainError(w, tt.err)

			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantStatus, w.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body["error"])
		})
	}
}

func TestWriteDomainError_MismatchAndDenialIdentical(t *testing.T) {
	a := httptest.NewRecorder()
	b := httptest.NewRecorder()

	WriteDomainError(a, domain.ErrTenantMismatch)
	WriteDomainError(b, domain.ErrPermissionDenied)

	assert.Equal(t, a.Code, b.Code)
	assert.Equal(t, a.Body.String(), b.Body.String())
}
