package radio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/itohio/surflamp/pkg/clock"
	"github.com/itohio/surflamp/pkg/config"
)

// Mock simulates the WiFi radio and its surroundings for tests and development.
type Mock struct {
	mu sync.Mutex

	networks     []Network
	passphrase   string
	failConnects int
	scripted     []error
	clk          clock.Clock

	connected  bool
	ssid       string
	lastReason Reason
	apSSID     string
	apActive   bool

	scans    int
	connects int
}

// NewMock creates a simulated radio. clk, if not nil, is advanced by the
// connect timeout on every failed attempt the way a real join would block.
func NewMock(cfg *config.MockConfig, clk clock.Clock) *Mock {
	if cfg == nil {
		cfg = &config.Default().Mock
	}
	m := &Mock{
		passphrase:   cfg.Passphrase,
		failConnects: cfg.FailConnects,
		clk:          clk,
	}
	for _, n := range cfg.Networks {
		m.networks = append(m.networks, Network{
			SSID:     n.SSID,
			RSSI:     n.RSSI,
			Security: ParseSecurity(n.Security),
			Channel:  n.Channel,
		})
	}
	return m
}

// SetNetworks replaces the simulated surroundings.
func (m *Mock) SetNetworks(networks ...Network) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networks = append([]Network(nil), networks...)
}

// SetPassphrase changes the passphrase every protected network accepts.
func (m *Mock) SetPassphrase(passphrase string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passphrase = passphrase
}

// ScriptConnects queues results for the next connection attempts. A nil entry
// falls through to the simulated network check.
func (m *Mock) ScriptConnects(results ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted = append(m.scripted, results...)
}

// DropLink simulates the access point going away.
func (m *Mock) DropLink(reason Reason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.lastReason = reason
}

// ScanCount returns the number of scans performed.
func (m *Mock) ScanCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scans
}

// ConnectCount returns the number of connection attempts.
func (m *Mock) ConnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// AccessPoint reports the setup access point state.
func (m *Mock) AccessPoint() (ssid string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apSSID, m.apActive
}

// Scan returns a copy of the simulated networks.
func (m *Mock) Scan(ctx context.Context) ([]Network, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scans++
	return append([]Network(nil), m.networks...), nil
}

// Connect joins a simulated network.
func (m *Mock) Connect(ctx context.Context, creds Credentials, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.connects++
	err := m.join(creds)
	if err != nil {
		m.connected = false
		m.lastReason = ReasonOf(err)
	} else {
		m.connected = true
		m.ssid = creds.SSID
		m.lastReason = ReasonNone
	}
	clk := m.clk
	m.mu.Unlock()

	if err != nil && clk != nil {
		if serr := clk.Sleep(ctx, timeout); serr != nil {
			return serr
		}
	}
	return err
}

// join decides the outcome of one attempt. Caller holds mu.
func (m *Mock) join(creds Credentials) error {
	if len(m.scripted) > 0 {
		next := m.scripted[0]
		m.scripted = m.scripted[1:]
		if next != nil {
			return next
		}
	}
	if m.failConnects > 0 {
		m.failConnects--
		return &ConnectError{SSID: creds.SSID, Reason: ReasonAssocLeave}
	}

	for _, n := range m.networks {
		if n.SSID != creds.SSID {
			continue
		}
		switch {
		case n.Security == SecurityWPA3:
			return &ConnectError{SSID: creds.SSID, Reason: ReasonAuthFail}
		case n.Security != SecurityOpen && creds.Passphrase != m.passphrase:
			return &ConnectError{SSID: creds.SSID, Reason: ReasonAuthFail}
		}
		return nil
	}
	return &ConnectError{SSID: creds.SSID, Reason: ReasonNoAPFound}
}

// Disconnect leaves the simulated network.
func (m *Mock) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.ssid = ""
	return nil
}

// Status returns the simulated link state.
func (m *Mock) Status(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return Status{Reason: m.lastReason}, nil
	}
	return Status{Connected: true, SSID: m.ssid}, nil
}

// StartAccessPoint brings up the simulated setup network.
func (m *Mock) StartAccessPoint(ctx context.Context, ssid, passphrase string) error {
	if ssid == "" {
		return fmt.Errorf("access point needs an SSID")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apSSID = ssid
	m.apActive = true
	return nil
}

// StopAccessPoint takes the simulated setup network down.
func (m *Mock) StopAccessPoint(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apActive = false
	return nil
}

// Close is a no-op.
func (m *Mock) Close() error {
	return nil
}
