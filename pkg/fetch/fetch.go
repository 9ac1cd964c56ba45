// Package fetch pulls the lamp's data payload from the backend.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/itohio/surflamp/pkg/config"
)

// ErrUnrecoverable means retrying cannot help, e.g. the lamp is not registered.
var ErrUnrecoverable = errors.New("fetch: unrecoverable")

const maxPayload = 64 << 10

// Payload is the part of the backend response the connectivity engine needs.
// Raw holds the full body for the display collaborator.
type Payload struct {
	Raw              []byte
	ServerTime       time.Time // Local time at the lamp, zero when the server sent no Date
	CoordinatesKnown bool
	Latitude         float64
	Longitude        float64
	SunsetMinutes    int // Minutes after local midnight, -1 unknown
}

// HTTP fetches the payload over HTTP.
type HTTP struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewHTTP creates a fetcher for cfg.URL.
func NewHTTP(cfg config.FetchConfig, log zerolog.Logger) *HTTP {
	return &HTTP{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

// Fetch performs one GET. 401, 403 and 404 wrap ErrUnrecoverable.
func (h *HTTP) Fetch(ctx context.Context) (Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to fetch %s: %w", h.url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return Payload{}, fmt.Errorf("%w: server answered %s", ErrUnrecoverable, resp.Status)
	default:
		return Payload{}, fmt.Errorf("server answered %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return Payload{}, fmt.Errorf("failed to read payload: %w", err)
	}

	p, err := Parse(body, resp.Header.Get("Date"))
	if err != nil {
		return Payload{}, err
	}
	h.log.Debug().Int("bytes", len(body)).Bool("coordinates", p.CoordinatesKnown).Msg("Payload fetched")
	return p, nil
}

// Parse extracts the connectivity-relevant fields from a JSON body and an
// HTTP Date header. The server time is shifted by tz_offset hours.
func Parse(body []byte, date string) (Payload, error) {
	if !gjson.ValidBytes(body) {
		return Payload{}, fmt.Errorf("payload is not valid JSON")
	}

	p := Payload{Raw: body, SunsetMinutes: -1}

	lat := gjson.GetBytes(body, "latitude")
	lon := gjson.GetBytes(body, "longitude")
	if lat.Exists() && lon.Exists() && (lat.Float() != 0 || lon.Float() != 0) {
		p.CoordinatesKnown = true
		p.Latitude = lat.Float()
		p.Longitude = lon.Float()
	}

	if date != "" {
		t, err := http.ParseTime(date)
		if err != nil {
			return Payload{}, fmt.Errorf("invalid Date header %q: %w", date, err)
		}
		offset := int(gjson.GetBytes(body, "tz_offset").Int())
		p.ServerTime = t.In(time.FixedZone("", offset*3600))
	}

	if m := gjson.GetBytes(body, "sunset_minutes"); m.Exists() {
		p.SunsetMinutes = int(m.Int())
	} else if s := gjson.GetBytes(body, "sunset"); s.Exists() {
		minutes, err := parseClock(s.String())
		if err != nil {
			return Payload{}, fmt.Errorf("invalid sunset: %w", err)
		}
		p.SunsetMinutes = minutes
	}
	return p, nil
}

// parseClock parses "HH:MM" into minutes after midnight.
func parseClock(v string) (int, error) {
	hh, mm, ok := strings.Cut(v, ":")
	if !ok {
		return 0, fmt.Errorf("expected HH:MM, got %q", v)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", v)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", v)
	}
	return h*60 + m, nil
}
