package portal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/surflamp/pkg/config"
	"github.com/itohio/surflamp/pkg/radio"
	"github.com/itohio/surflamp/pkg/status"
)

func newServer(t *testing.T) (*Server, *atomic.Int32) {
	t.Helper()
	var resets atomic.Int32
	report := func() status.Report {
		return status.Report{State: "config_portal", Diagnostic: "Network 'HomeNet' not found."}
	}
	s := New(config.Default().Portal, report, func() { resets.Add(1) }, zerolog.Nop())
	return s, &resets
}

var sessionRe = regexp.MustCompile(`name="session" value="([^"]+)"`)

func get(t *testing.T, s *Server, path string) (int, string) {
	t.Helper()
	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func post(t *testing.T, s *Server, path string, form url.Values) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func session(t *testing.T, s *Server) string {
	t.Helper()
	code, body := get(t, s, "/")
	require.Equal(t, http.StatusOK, code)
	m := sessionRe.FindStringSubmatch(body)
	require.Len(t, m, 2)
	return m[1]
}

func TestServer_ClosedByDefault(t *testing.T) {
	s, _ := newServer(t)
	assert.False(t, s.Open())

	code, _ := get(t, s, "/")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, _ = post(t, s, "/save", url.Values{"ssid": {"HomeNet"}, "password": {"surfsup12"}})
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestServer_SubmitDeliversCredentials(t *testing.T) {
	s, _ := newServer(t)
	subs, err := s.Start(context.Background(), "Network 'HomeNet' not found.")
	require.NoError(t, err)
	assert.True(t, s.Open())

	code, body := get(t, s, "/")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Network &#39;HomeNet&#39; not found.")
	assert.Contains(t, body, "SurfLamp-Setup")

	code, _ = post(t, s, "/save", url.Values{
		"session":  {session(t, s)},
		"ssid":     {"  HomeNet "},
		"password": {"surfsup12"},
	})
	assert.Equal(t, http.StatusAccepted, code)

	select {
	case creds := <-subs:
		assert.Equal(t, radio.Credentials{SSID: "HomeNet", Passphrase: "surfsup12"}, creds)
	default:
		t.Fatal("no submission delivered")
	}
}

func TestServer_RejectsStaleSession(t *testing.T) {
	s, _ := newServer(t)
	_, err := s.Start(context.Background(), "")
	require.NoError(t, err)

	code, _ := post(t, s, "/save", url.Values{"session": {"old"}, "ssid": {"HomeNet"}})
	assert.Equal(t, http.StatusConflict, code)
}

func TestServer_OneSubmissionInFlight(t *testing.T) {
	s, _ := newServer(t)
	_, err := s.Start(context.Background(), "")
	require.NoError(t, err)
	token := session(t, s)

	form := url.Values{"session": {token}, "ssid": {"HomeNet"}, "password": {"surfsup12"}}
	code, _ := post(t, s, "/save", form)
	assert.Equal(t, http.StatusAccepted, code)
	code, _ = post(t, s, "/save", form)
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestServer_Validation(t *testing.T) {
	tests := []struct {
		name     string
		ssid     string
		password string
		want     int
	}{
		{"missing ssid", "", "surfsup12", http.StatusBadRequest},
		{"long ssid", strings.Repeat("x", 33), "surfsup12", http.StatusBadRequest},
		{"short password", "HomeNet", "short", http.StatusBadRequest},
		{"long password", "HomeNet", strings.Repeat("p", 64), http.StatusBadRequest},
		{"open network", "CoffeeShop", "", http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newServer(t)
			_, err := s.Start(context.Background(), "")
			require.NoError(t, err)

			code, _ := post(t, s, "/save", url.Values{
				"session":  {session(t, s)},
				"ssid":     {tt.ssid},
				"password": {tt.password},
			})
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestServer_NotifyAndStop(t *testing.T) {
	s, _ := newServer(t)
	subs, err := s.Start(context.Background(), "first")
	require.NoError(t, err)

	_, err = s.Start(context.Background(), "second")
	assert.ErrorIs(t, err, ErrSessionOpen)

	s.Notify("Incorrect password. Check the password for 'HomeNet'.")
	_, body := get(t, s, "/")
	assert.Contains(t, body, "Incorrect password.")

	require.NoError(t, s.Stop())
	_, ok := <-subs
	assert.False(t, ok, "channel closed on stop")
	assert.NoError(t, s.Stop())

	code, _ := get(t, s, "/")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestServer_StartCancelled(t *testing.T) {
	s, _ := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Start(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.Open())
}

func TestServer_StatusAndReset(t *testing.T) {
	s, resets := newServer(t)

	code, body := get(t, s, "/api/status")
	require.Equal(t, http.StatusOK, code)
	var rep status.Report
	require.NoError(t, json.Unmarshal([]byte(body), &rep))
	assert.Equal(t, "config_portal", rep.State)

	code, _ = post(t, s, "/api/reset", nil)
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, int32(1), resets.Load())
}

func TestServer_QR(t *testing.T) {
	s, _ := newServer(t)
	code, body := get(t, s, "/qr.png")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, strings.HasPrefix(body, "\x89PNG"))
}

func TestWiFiURI(t *testing.T) {
	assert.Equal(t, "WIFI:T:WPA;S:SurfLamp-Setup;P:surf123456;;", WiFiURI("SurfLamp-Setup", "surf123456"))
	assert.Equal(t, "WIFI:T:nopass;S:Cafe;;", WiFiURI("Cafe", ""))
	assert.Equal(t, `WIFI:T:WPA;S:a\;b\:c;P:p\,q\\r;;`, WiFiURI("a;b:c", `p,q\r`))
}
