package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Run("successful write", func(t *testing.T) {
		w := httptest.NewRecorder()
		data := map[string]string{"message": "test"}

		err := WriteJSON(w, http.StatusOK, data)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "test", response["message"])
	})

	t.Run("nil data", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := WriteJSON(w, http.StatusNoContent, nil)
		require.NoError(t, err)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("unencodable data", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := WriteJSON(w, http.StatusOK, map[string]interface{}{"ch": make(chan int)})
		assert.Error(t, err)
	})
}

func TestWriteBadRequest(t *testing.T) {
	w := httptest.NewRecorder()
	details := map[string]interface{}{"activity_id": "activity_id is required"}

	require.NoError(t, WriteBadRequest(w, "Validation failed", details))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "bad_request", response.Error)
	assert.Equal(t, "Validation failed", response.Message)
	assert.Equal(t, "activity_id is required", response.Details["activity_id"])
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name        string
		write       func(w http.ResponseWriter, message string) error
		message     string
		wantStatus  int
		wantError   string
		wantMessage string
	}{
		{"unauthorized custom", WriteUnauthorized, "authentication token expired", http.StatusUnauthorized, "unauthorized", "authentication token expired"},
		{"unauthorized default", WriteUnauthorized, "", http.StatusUnauthorized, "unauthorized", "Authentication required"},
		{"forbidden custom", WriteForbidden, "workspace belongs to another enterprise", http.StatusForbidden, "forbidden", "workspace belongs to another enterprise"},
		{"forbidden default", WriteForbidden, "", http.StatusForbidden, "forbidden", "Access forbidden"},
		{"not found custom", WriteNotFound, "endpoint not found", http.StatusNotFound, "not_found", "endpoint not found"},
		{"not found default", WriteNotFound, "", http.StatusNotFound, "not_found", "Resource not found"},
		{"internal custom", WriteInternalServerError, "An internal error occurred", http.StatusInternalServerError, "internal_error", "An internal error occurred"},
		{"internal default", WriteInternalServerError, "", http.StatusInternalServerError, "internal_error", "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, tt.write(w, tt.message))

			assert.Equal(t, tt.wantStatus, w.Code)
			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.wantError, response.Error)
			assert.Equal(t, tt.wantMessage, response.Message)
			assert.Nil(t, response.Details)
		})
	}
}
