package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readyFlag bool

func (r readyFlag) IsReady() bool { return bool(r) }

type fixedCount int

func (c fixedCount) Count() int { return int(c) }

func TestReadyz(t *testing.T) {
	tests := []struct {
		name    string
		feed    bool
		catalog bool
		status  int
	}{
		{"feed ready", true, true, http.StatusOK},
		{"catalog missing does not block", true, false, http.StatusOK},
		{"feed not ready", false, true, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandler(readyFlag(tc.feed), readyFlag(tc.catalog), fixedCount(3))
			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tc.status, rec.Code)
			var body ReadyResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.feed, body.Ready)
			assert.Equal(t, tc.catalog, body.CatalogLoaded)
			assert.Equal(t, 3, body.TrainCount)
		})
	}
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(readyFlag(false), readyFlag(false), fixedCount(0)).Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
