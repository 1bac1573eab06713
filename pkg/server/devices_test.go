package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voltledger/voltledger/pkg/report"
)

func TestDeviceHandlers(t *testing.T) {
	srv := newTestServer(t)
	h := srv.setupHandler()

	t.Run("empty list is an array", func(t *testing.T) {
		w := do(t, h, "GET", "/api/devices", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})

	t.Run("malformed body", func(t *testing.T) {
		w := do(t, h, "POST", "/api/devices", `{"name":`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"invalid request body"}`, w.Body.String())
	})

	t.Run("created device is listed", func(t *testing.T) {
		w := do(t, h, "POST", "/api/devices", map[string]any{"name": "Geyser", "room": "Bathroom", "device_type": "heater"}, nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		created := decode[report.CreatedDevice](t, w)
		assert.Equal(t, "Geyser", created.Name)

		w = do(t, h, "GET", "/api/devices", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		devices := decode[[]map[string]any](t, w)
		require.Len(t, devices, 1)
		assert.Equal(t, created.ID, devices[0]["id"])
		assert.Equal(t, "Bathroom", devices[0]["room"])
	})
}
