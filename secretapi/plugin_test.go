package secretapi_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/gsecret/config"
	"github.com/GoCodeAlone/gsecret/secretapi"
)

// TestPluginZeroStageChainReturns404 covers a chain that exists (it was
// registered under its name) but has no steps: every handler's first
// exec.Next() fails the same way a bad chain name would, and both must
// answer 404, not 501.
func TestPluginZeroStageChainReturns404(t *testing.T) {
	plugin, err := secretapi.NewPlugin(nil)
	require.NoError(t, err)
	require.NoError(t, plugin.AddChain(config.ChainConfig{Name: "empty"}))

	mux := http.NewServeMux()
	plugin.MountRoutes(mux)

	cases := []struct {
		name   string
		method string
		path   string
	}{
		{"by key", http.MethodGet, "/gsecret/empty/key/k"},
		{"by id", http.MethodGet, "/gsecret/empty/id/i"},
		{"write", http.MethodPost, "/gsecret/empty/write"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader("{}"))
			req.Header.Set("Authorization", "Bearer t")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusNotFound, rec.Code)
		})
	}
}
