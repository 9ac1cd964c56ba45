package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/surflamp/pkg/config"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		date    string
		check   func(t *testing.T, p Payload)
		wantErr bool
	}{
		{
			name: "coordinates and server time with offset",
			body: `{"wave_height_cm":120,"latitude":32.08,"longitude":34.78,"tz_offset":3}`,
			date: "Sun, 01 Jun 2025 17:30:00 GMT",
			check: func(t *testing.T, p Payload) {
				assert.True(t, p.CoordinatesKnown)
				assert.InDelta(t, 32.08, p.Latitude, 1e-9)
				assert.Equal(t, 20, p.ServerTime.Hour())
				assert.Equal(t, 30, p.ServerTime.Minute())
				assert.Equal(t, -1, p.SunsetMinutes)
			},
		},
		{
			name: "zero coordinates are unknown",
			body: `{"latitude":0,"longitude":0}`,
			check: func(t *testing.T, p Payload) {
				assert.False(t, p.CoordinatesKnown)
				assert.True(t, p.ServerTime.IsZero())
			},
		},
		{
			name: "sunset minutes",
			body: `{"sunset_minutes":1185}`,
			check: func(t *testing.T, p Payload) {
				assert.Equal(t, 1185, p.SunsetMinutes)
			},
		},
		{
			name: "sunset clock",
			body: `{"sunset":"19:45"}`,
			check: func(t *testing.T, p Payload) {
				assert.Equal(t, 19*60+45, p.SunsetMinutes)
			},
		},
		{name: "bad sunset", body: `{"sunset":"25:00"}`, wantErr: true},
		{name: "not json", body: `<html>`, wantErr: true},
		{name: "bad date", body: `{}`, date: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse([]byte(tt.body), tt.date)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []byte(tt.body), p.Raw)
			tt.check(t, p)
		})
	}
}

func TestHTTP_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Date", "Sun, 01 Jun 2025 17:30:00 GMT")
			w.Write([]byte(`{"latitude":1.5,"longitude":2.5,"sunset":"20:10"}`))
		case "/busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	fetcher := func(path string) *HTTP {
		return NewHTTP(config.FetchConfig{URL: srv.URL + path, Timeout: time.Second}, zerolog.Nop())
	}

	p, err := fetcher("/ok").Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, p.CoordinatesKnown)
	assert.Equal(t, 20*60+10, p.SunsetMinutes)
	assert.Equal(t, 2025, p.ServerTime.Year())

	_, err = fetcher("/busy").Fetch(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnrecoverable)

	_, err = fetcher("/unregistered").Fetch(context.Background())
	assert.ErrorIs(t, err, ErrUnrecoverable)
}
