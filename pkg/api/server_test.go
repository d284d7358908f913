package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markus-lassfolk/acsd/pkg/acs"
	"github.com/markus-lassfolk/acsd/pkg/wifi"
)

type fakeRadios struct {
	radios   map[string]wifi.RadioStatus
	selected []string
	selErr   error
}

func (f *fakeRadios) Radios() []wifi.RadioStatus {
	out := make([]wifi.RadioStatus, 0, len(f.radios))
	for _, name := range []string{"radio0", "radio1"} {
		if r, ok := f.radios[name]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeRadios) Radio(name string) (wifi.RadioStatus, error) {
	r, ok := f.radios[name]
	if !ok {
		return wifi.RadioStatus{}, fmt.Errorf("%w: %s", wifi.ErrUnknownRadio, name)
	}
	return r, nil
}

func (f *fakeRadios) Select(_ context.Context, name string) (acs.Status, error) {
	if _, ok := f.radios[name]; !ok {
		return acs.StatusImmediateFailure, fmt.Errorf("%w: %s", wifi.ErrUnknownRadio, name)
	}
	if f.selErr != nil {
		return acs.StatusImmediateFailure, f.selErr
	}
	f.selected = append(f.selected, name)
	return acs.StatusInProgress, nil
}

type fakeScheduler struct{}

func (fakeScheduler) Status() wifi.SchedulerStatus {
	return wifi.SchedulerStatus{Running: true, NextNightly: time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)}
}

func newFakeRadios() *fakeRadios {
	return &fakeRadios{radios: map[string]wifi.RadioStatus{
		"radio0": {Name: "radio0", Device: "wlan0", Band: "2g", State: "idle", Channel: 6, Bandwidth: 20},
		"radio1": {Name: "radio1", Device: "radio1", Band: "5g", State: "done", Channel: 36, Bandwidth: 80,
			LastOutcome: &acs.Outcome{Interface: "radio1", Channel: 36, CenterSeg0: 42, Bandwidth: 80, Reason: "ok"}},
	}}
}

func do(t *testing.T, h http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestListRadios(t *testing.T) {
	s := NewServer(newFakeRadios(), nil, nil)
	rr := do(t, s.Handler(), http.MethodGet, "/api/v1/radios", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body struct {
		Radios []wifi.RadioStatus `json:"radios"`
		Count  int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "radio0", body.Radios[0].Name)
	assert.Equal(t, 6, body.Radios[0].Channel)
}

func TestGetRadio(t *testing.T) {
	s := NewServer(newFakeRadios(), nil, nil)

	rr := do(t, s.Handler(), http.MethodGet, "/api/v1/radios/radio1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var status wifi.RadioStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, 80, status.Bandwidth)
	require.NotNil(t, status.LastOutcome)
	assert.Equal(t, 42, status.LastOutcome.CenterSeg0)

	rr = do(t, s.Handler(), http.MethodGet, "/api/v1/radios/radio9", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, false, decode(t, rr)["success"])
}

func TestSelectRadio(t *testing.T) {
	tests := []struct {
		name   string
		radio  string
		selErr error
		code   int
		reason string
	}{
		{"accepted", "radio0", nil, http.StatusAccepted, ""},
		{"unknown radio", "radio9", nil, http.StatusNotFound, "other"},
		{"busy", "radio0", acs.ErrSelectionInProgress, http.StatusConflict, "in_progress"},
		{"scan refused", "radio0", fmt.Errorf("%w: device busy", acs.ErrScanIssuance), http.StatusBadGateway, "scan_issuance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			radios := newFakeRadios()
			radios.selErr = tt.selErr
			s := NewServer(radios, nil, nil)

			rr := do(t, s.Handler(), http.MethodPost, "/api/v1/radios/"+tt.radio+"/select", nil)
			assert.Equal(t, tt.code, rr.Code)

			body := decode(t, rr)
			if tt.code == http.StatusAccepted {
				assert.Equal(t, "in_progress", body["status"])
				assert.Equal(t, []string{tt.radio}, radios.selected)
				return
			}
			assert.Equal(t, tt.reason, body["reason"])
			assert.Empty(t, radios.selected)
		})
	}
}

func TestSelectRequiresPost(t *testing.T) {
	s := NewServer(newFakeRadios(), nil, nil)
	rr := do(t, s.Handler(), http.MethodGet, "/api/v1/radios/radio0/select", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestAuthKey(t *testing.T) {
	s := NewServer(newFakeRadios(), &Config{AuthKey: "s3cret"}, nil)
	h := s.Handler()

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/v1/radios", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(t, h, http.MethodGet, "/api/v1/radios", map[string]string{"X-API-Key": "wrong"}).Code)
	assert.Equal(t, http.StatusOK,
		do(t, h, http.MethodGet, "/api/v1/radios", map[string]string{"X-API-Key": "s3cret"}).Code)
}

func TestStatusAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "acsd_selection_cycles_total 1")
	})
	s := NewServer(newFakeRadios(), &Config{AuthKey: "k"}, nil,
		WithMetricsHandler(metrics), WithScheduler(fakeScheduler{}))
	h := s.Handler()

	rr := do(t, h, http.MethodGet, "/api/v1/status", map[string]string{"X-API-Key": "k"})
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "operational", body["status"])
	assert.Equal(t, 2.0, body["radios"])
	assert.Contains(t, body, "scheduler")

	rr = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code, "metrics are not behind the API key")
	assert.True(t, strings.Contains(rr.Body.String(), "acsd_selection_cycles_total"))
}

func TestServerStartStop(t *testing.T) {
	s := NewServer(newFakeRadios(), &Config{Listen: "127.0.0.1:0"}, nil)
	require.NoError(t, s.Start())
	addr := s.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/api/v1/radios/radio0")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}

func TestServerDisabled(t *testing.T) {
	s := NewServer(newFakeRadios(), &Config{}, nil)
	require.NoError(t, s.Start())
	assert.Empty(t, s.Addr())
}
