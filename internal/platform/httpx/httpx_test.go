package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("run: %w", ErrValidation), http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{ErrConflict, http.StatusConflict},
		{ErrUnauthorized, http.StatusUnauthorized},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.status, body.Status)
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		RunID string `json:"run_id"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"run_id":"r1","extra":1}`))
	require.Error(t, DecodeJSON(req, &target))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"run_id":"r1"}`))
	require.NoError(t, DecodeJSON(req, &target))
	assert.Equal(t, "r1", target.RunID)
}
