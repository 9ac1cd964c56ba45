// Package portal is the lamp's operator configuration channel: a small web
// server reachable over the setup access point, plus the diagnostics API.
package portal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"

	"github.com/itohio/surflamp/pkg/acquire"
	"github.com/itohio/surflamp/pkg/config"
	"github.com/itohio/surflamp/pkg/radio"
	"github.com/itohio/surflamp/pkg/status"
)

var (
	// ErrSessionOpen is returned by Start while another session is open.
	ErrSessionOpen = errors.New("portal: session already open")

	errNoSession = errors.New("configuration portal closed")
)

// Ensure Server implements acquire.Portal.
var _ acquire.Portal = (*Server)(nil)

// Server serves the configuration form while a session is open and the
// diagnostics API at all times.
type Server struct {
	app    *fiber.App
	listen string
	apSSID string
	apPass string
	report func() status.Report
	reset  func()
	log    zerolog.Logger

	mu      sync.Mutex
	session string
	notice  string
	subs    chan radio.Credentials
}

// New creates the server. report and reset back the diagnostics API.
func New(cfg config.PortalConfig, report func() status.Report, reset func(), log zerolog.Logger) *Server {
	s := &Server{
		listen: cfg.Listen,
		apSSID: cfg.APSSID,
		apPass: cfg.APPassphrase,
		report: report,
		reset:  reset,
		log:    log,
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		AppName:               "surflamp",
	})
	s.app.Get("/", s.handleIndex)
	s.app.Post("/save", s.handleSave)
	s.app.Get("/qr.png", s.handleQR)
	s.app.Get("/api/status", s.handleStatus)
	s.app.Post("/api/reset", s.handleReset)
	return s
}

// Listen serves until ctx is cancelled.
func (s *Server) Listen(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", s.listen).Msg("Portal server starting")
		errCh <- s.app.Listen(s.listen)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("portal server stopped: %w", err)
	case <-ctx.Done():
		if err := s.app.Shutdown(); err != nil {
			s.log.Warn().Err(err).Msg("Portal shutdown failed")
		}
		<-errCh
		return nil
	}
}

// Start opens a configuration session.
func (s *Server) Start(ctx context.Context, notice string) (<-chan radio.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs != nil {
		return nil, ErrSessionOpen
	}
	s.session = xid.New().String()
	s.notice = notice
	s.subs = make(chan radio.Credentials, 1)
	s.log.Info().Str("session", s.session).Msg("Configuration session opened")
	return s.subs, nil
}

// Notify replaces the notice shown on the form.
func (s *Server) Notify(notice string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = notice
}

// Stop closes the session. Pending submissions are dropped.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs == nil {
		return nil
	}
	close(s.subs)
	s.subs = nil
	s.session = ""
	s.notice = ""
	return nil
}

// Open reports whether a configuration session is open.
func (s *Server) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs != nil
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	s.mu.Lock()
	data := pageData{Notice: s.notice, Session: s.session, APSSID: s.apSSID}
	open := s.subs != nil
	s.mu.Unlock()

	if !open {
		return c.Status(fiber.StatusServiceUnavailable).SendString(errNoSession.Error())
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to render page")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}

func (s *Server) handleSave(c *fiber.Ctx) error {
	creds := radio.Credentials{
		SSID:       strings.TrimSpace(c.FormValue("ssid")),
		Passphrase: c.FormValue("password"),
	}
	if err := validate(creds); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString(err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs == nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString(errNoSession.Error())
	}
	if c.FormValue("session") != s.session {
		return c.Status(fiber.StatusConflict).SendString("Session expired, reload the page")
	}

	select {
	case s.subs <- creds:
	default:
		return c.Status(fiber.StatusTooManyRequests).SendString("Still trying the previous network, please wait")
	}
	s.log.Info().Str("ssid", creds.SSID).Msg("Credentials submitted")

	var buf bytes.Buffer
	if err := submitted.Execute(&buf, creds.SSID); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to render page")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(fiber.StatusAccepted).Send(buf.Bytes())
}

func (s *Server) handleQR(c *fiber.Ctx) error {
	png, err := qrcode.Encode(WiFiURI(s.apSSID, s.apPass), qrcode.Medium, 256)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to encode QR code")
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.report())
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	s.reset()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"reset": "requested"})
}

// validate checks credentials the way the radio will judge them.
func validate(creds radio.Credentials) error {
	switch {
	case creds.SSID == "":
		return errors.New("WiFi name is required")
	case len(creds.SSID) > 32:
		return errors.New("WiFi name is longer than 32 bytes")
	case creds.Passphrase != "" && (len(creds.Passphrase) < 8 || len(creds.Passphrase) > 63):
		return errors.New("password must be 8 to 63 characters, or empty for open networks")
	}
	return nil
}

var wifiEscaper = strings.NewReplacer(`\`, `\\`, `;`, `\;`, `,`, `\,`, `:`, `\:`, `"`, `\"`)

// WiFiURI is the join string phones understand when scanning a QR code.
func WiFiURI(ssid, passphrase string) string {
	if passphrase == "" {
		return fmt.Sprintf("WIFI:T:nopass;S:%s;;", wifiEscaper.Replace(ssid))
	}
	return fmt.Sprintf("WIFI:T:WPA;S:%s;P:%s;;", wifiEscaper.Replace(ssid), wifiEscaper.Replace(passphrase))
}
