package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		write   func(w http.ResponseWriter)
		status  int
		success bool
		message string
	}{
		{"ok", func(w http.ResponseWriter) { OK(w, map[string]int{"n": 1}) }, http.StatusOK, true, ""},
		{"created", func(w http.ResponseWriter) { Created(w, "x") }, http.StatusCreated, true, ""},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "nope") }, http.StatusBadRequest, false, "nope"},
		{"unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "who") }, http.StatusUnauthorized, false, "who"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "gone") }, http.StatusNotFound, false, "gone"},
		{"conflict", func(w http.ResponseWriter) { Conflict(w, "image unavailable") }, http.StatusConflict, false, "image unavailable"},
		{"too large", func(w http.ResponseWriter) { TooLarge(w, "big") }, http.StatusRequestEntityTooLarge, false, "big"},
		{"bad gateway", func(w http.ResponseWriter) { BadGateway(w, "upload failed") }, http.StatusBadGateway, false, "upload failed"},
		{"internal", InternalError, http.StatusInternalServerError, false, "internal server error"},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		tt.write(rec)

		assert.Equal(t, tt.status, rec.Code, tt.name)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"), tt.name)

		var env Envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), tt.name)
		assert.Equal(t, tt.success, env.Success, tt.name)
		assert.Equal(t, tt.message, env.Error, tt.name)
	}
}

func TestJSON_KeepsSignedURLsLiteral(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	OK(rec, map[string]string{"url": "https://s.example/a.png?X-Amz-Expires=3600&X-Amz-Signature=abc"})

	assert.Contains(t, rec.Body.String(), "X-Amz-Expires=3600&X-Amz-Signature")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}
