package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devskill-org/p1budget/internal/config"
	"github.com/devskill-org/p1budget/internal/core"
	"github.com/devskill-org/p1budget/internal/corelog"
	"github.com/devskill-org/p1budget/internal/monitor"
	"github.com/devskill-org/p1budget/internal/settings"
)

func newTestServer(t *testing.T) (*Server, *core.Registry) {
	t.Helper()
	log := corelog.New(os.Stderr, "")
	reg := core.NewRegistry(log)
	cfg := config.New(log)
	s, err := settings.Load(filepath.Join(t.TempDir(), "settings.json"), log)
	require.NoError(t, err)
	_ = settings.Subscribe(s, cfg, "max_current", config.ParseFloat, 16.0)
	mon := monitor.New()
	reg.RegisterConsumer(mon)

	srv := New(Config{Addr: ":0", DocRoot: t.TempDir(), Latitude: 52.0, Longitude: 5.0}, reg, s, mon, log)
	return srv, reg
}

func TestHandlePoliciesListsRegisteredPolicies(t *testing.T) {
	srv, reg := newTestServer(t)
	reg.RegisterPolicy(&namedPolicy{name: "red"})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/policies", nil)
	srv.handlePolicies(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "red", out[0]["name"])
}

func TestHandleMonitorBeforeAnyTickReturnsZeroValue(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/monitor", nil)
	srv.handleMonitor(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var out monitorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, 0.0, out.Budget.Current)
}

func TestHandleActivatePolicySetsRegistryIndex(t *testing.T) {
	srv, reg := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/activate_policy", jsonBody(t, 2))
	srv.handleActivatePolicy(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 2, reg.GetActivePolicy())
}

func TestHandlePostSettingsRejectsUnknownKey(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/settings", jsonBody(t, map[string]any{"nope": 1}))
	srv.handlePostSettings(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var result settings.ApplyResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Contains(t, result.Rejected, "nope")
}

func TestRouterRejectsWrongMethodOnAPIRoutesWith400(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/policies", nil)
	srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, "method not allowed", out["error"])
}

func TestRouterAcceptsRegisteredMethodOnAPIRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/policies", nil)
	srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleStaticRejectsDotDotAndAPIPrefix(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/../../etc/passwd", nil)
	srv.handleStatic(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	srv.handleStatic(rr2, req2)
	assert.Equal(t, http.StatusNotFound, rr2.Code)
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

type namedPolicy struct{ name string }

func (p *namedPolicy) Name() string        { return p.name }
func (p *namedPolicy) Icon() string        { return "" }
func (p *namedPolicy) Label() string       { return p.name }
func (p *namedPolicy) Description() string { return "" }
func (p *namedPolicy) Apply(core.Situation) (core.Budget, error) {
	return core.Budget{}, nil
}
