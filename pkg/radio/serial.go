package radio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the factory baud rate of ESP-AT modems.
	DefaultBaudRate = 115200
	// DefaultCommandTimeout bounds short AT commands.
	DefaultCommandTimeout = 5 * time.Second

	scanTimeout = 15 * time.Second
	readTimeout = 50 * time.Millisecond

	// lateReplyTimeout bounds the wait for the reply of a timed out command.
	lateReplyTimeout = 20 * time.Second
)

var errTimeout = errors.New("command timed out")

// port is the part of serial.Port the modem driver uses.
type port interface {
	io.ReadWriter
	Close() error
}

// commandError is a terminal ERROR or FAIL response.
type commandError struct {
	cmd    string
	result string
}

func (e *commandError) Error() string {
	return fmt.Sprintf("%s: %s", e.cmd, e.result)
}

// Serial drives an ESP-AT WiFi modem over a serial port.
type Serial struct {
	portName    string
	baudRate    int
	cmdTimeout  time.Duration
	lateTimeout time.Duration
	log         zerolog.Logger

	mu          sync.Mutex
	conn        port
	pending     []byte
	chunk       [256]byte
	lastReason  Reason
	outstanding string // Command whose reply has not been read yet
}

// NewSerial creates a modem driver. Call Open before use.
func NewSerial(portName string, baudRate int, cmdTimeout time.Duration, log zerolog.Logger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if cmdTimeout == 0 {
		cmdTimeout = DefaultCommandTimeout
	}
	return &Serial{
		portName:    portName,
		baudRate:    baudRate,
		cmdTimeout:  cmdTimeout,
		lateTimeout: lateReplyTimeout,
		log:         log,
	}
}

// Ports returns the names of available serial ports.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Open opens the serial port and puts the modem into station mode.
func (s *Serial) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return fmt.Errorf("already open")
	}

	p, err := serial.Open(s.portName, &serial.Mode{BaudRate: s.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.portName, err)
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	return s.attach(ctx, p)
}

// attach takes ownership of p and initializes the modem. Caller holds mu.
func (s *Serial) attach(ctx context.Context, p port) error {
	s.conn = p
	s.pending = s.pending[:0]
	s.outstanding = ""

	for _, cmd := range []string{"AT", "ATE0", "AT+CWMODE=1"} {
		if _, err := s.command(ctx, cmd, s.cmdTimeout); err != nil {
			s.conn.Close()
			s.conn = nil
			return fmt.Errorf("modem init failed: %w", err)
		}
	}
	return nil
}

// Close closes the serial port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		s.log.Warn().Err(err).Msg("Error closing serial port")
	}
	return err
}

// Scan lists visible access points.
func (s *Serial) Scan(ctx context.Context) ([]Network, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.command(ctx, "AT+CWLAP", scanTimeout)
	if err != nil {
		return nil, err
	}

	networks := make([]Network, 0, len(lines))
	for _, line := range lines {
		if !strings.HasPrefix(line, "+CWLAP:") {
			continue
		}
		n, err := parseCWLAP(line)
		if err != nil {
			s.log.Debug().Err(err).Str("line", line).Msg("Skipping scan entry")
			continue
		}
		networks = append(networks, n)
	}
	return networks, nil
}

// Connect joins the network. The modem blocks until it has an IP or gives up.
func (s *Serial) Connect(ctx context.Context, creds Credentials, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := fmt.Sprintf(`AT+CWJAP="%s","%s"`, escape(creds.SSID), escape(creds.Passphrase))
	lines, err := s.command(ctx, cmd, timeout)
	if err == nil {
		s.lastReason = ReasonNone
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	reason := ReasonAssocLeave
	var ce *commandError
	if errors.As(err, &ce) {
		reason = parseJoinFailure(lines)
	} else if !errors.Is(err, errTimeout) {
		return err
	}
	s.lastReason = reason
	return &ConnectError{SSID: creds.SSID, Reason: reason}
}

// Disconnect leaves the current network.
func (s *Serial) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.command(ctx, "AT+CWQAP", s.cmdTimeout)
	return err
}

// Status queries the station link.
func (s *Serial) Status(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.command(ctx, "AT+CWJAP?", s.cmdTimeout)
	if err != nil {
		return Status{}, err
	}
	st := parseStatus(lines)
	if !st.Connected {
		st.Reason = s.lastReason
	}
	return st, nil
}

// StartAccessPoint switches to station+AP mode with a WPA2 setup network.
func (s *Serial) StartAccessPoint(ctx context.Context, ssid, passphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.command(ctx, "AT+CWMODE=3", s.cmdTimeout); err != nil {
		return err
	}
	ecn := int(SecurityWPA2)
	if passphrase == "" {
		ecn = int(SecurityOpen)
	}
	cmd := fmt.Sprintf(`AT+CWSAP="%s","%s",5,%d`, escape(ssid), escape(passphrase), ecn)
	_, err := s.command(ctx, cmd, s.cmdTimeout)
	return err
}

// StopAccessPoint returns to station-only mode.
func (s *Serial) StopAccessPoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.command(ctx, "AT+CWMODE=1", s.cmdTimeout)
	return err
}

// command sends cmd and collects response lines until OK, ERROR or FAIL.
// Caller holds mu.
func (s *Serial) command(ctx context.Context, cmd string, timeout time.Duration) ([]string, error) {
	if s.conn == nil {
		return nil, ErrNotConnected
	}
	if s.outstanding != "" {
		if err := s.resync(ctx); err != nil {
			return nil, err
		}
	}
	if _, err := io.WriteString(s.conn, cmd+"\r\n"); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", cmd, err)
	}

	deadline := time.Now().Add(timeout)
	var lines []string
	for {
		line, err := s.readLine(ctx, deadline)
		if err != nil {
			s.outstanding = cmd
			return lines, fmt.Errorf("%s: %w", cmd, err)
		}
		switch line {
		case "OK":
			return lines, nil
		case "ERROR", "FAIL":
			return lines, &commandError{cmd: cmd, result: line}
		case "WIFI DISCONNECT":
			s.log.Debug().Msg("Modem reports link down")
		}
		if line == cmd {
			continue // echo
		}
		lines = append(lines, line)
	}
}

// resync reads and drops the reply of the outstanding command, up to its
// terminal line. Caller holds mu.
func (s *Serial) resync(ctx context.Context) error {
	name := commandName(s.outstanding)
	join := strings.HasPrefix(s.outstanding, "AT+CWJAP=")
	deadline := time.Now().Add(s.lateTimeout)
	for {
		line, err := s.readLine(ctx, deadline)
		if errors.Is(err, errTimeout) {
			s.log.Warn().Str("cmd", name).Int("dropped", len(s.pending)).Msg("No late reply from modem")
			s.pending = s.pending[:0]
			s.outstanding = ""
			return nil
		}
		if err != nil {
			return fmt.Errorf("waiting for %s reply: %w", name, err)
		}

		switch line {
		case "OK", "ERROR", "FAIL":
			s.log.Debug().Str("cmd", name).Str("result", line).Msg("Late reply discarded")
			if join && line == "OK" {
				s.lastReason = ReasonNone
			}
			s.outstanding = ""
			return nil
		}
		s.log.Debug().Str("cmd", name).Str("line", line).Msg("Dropping stale line")
	}
}

// commandName strips the arguments, which may carry a passphrase.
func commandName(cmd string) string {
	if i := strings.IndexByte(cmd, '='); i >= 0 {
		return cmd[:i]
	}
	return cmd
}

func (s *Serial) readLine(ctx context.Context, deadline time.Time) (string, error) {
	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := strings.TrimSpace(string(s.pending[:i]))
			s.pending = s.pending[i+1:]
			if line == "" {
				continue
			}
			return line, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if time.Now().After(deadline) {
			return "", errTimeout
		}

		n, err := s.conn.Read(s.chunk[:])
		if err != nil {
			return "", fmt.Errorf("failed to read from modem: %w", err)
		}
		s.pending = append(s.pending, s.chunk[:n]...)
	}
}

// escape quotes a string argument of an AT command.
func escape(v string) string {
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '\\', '"', ',':
			b.WriteByte('\\')
		}
		b.WriteByte(v[i])
	}
	return b.String()
}

// splitFields splits a response payload on commas outside quotes.
func splitFields(v string) []string {
	var (
		fields  []string
		cur     strings.Builder
		quoted  bool
		escaped bool
	)
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case c == '\\' && quoted:
			escaped = true
		case c == '"':
			quoted = !quoted
		case c == ',' && !quoted:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(fields, cur.String())
}

// parseCWLAP parses one scan entry.
// Format: +CWLAP:(ecn,"ssid",rssi,"mac",channel,...)
func parseCWLAP(line string) (Network, error) {
	payload, ok := strings.CutPrefix(line, "+CWLAP:")
	if !ok {
		return Network{}, fmt.Errorf("not a scan entry")
	}
	payload = strings.TrimSuffix(strings.TrimPrefix(payload, "("), ")")

	fields := splitFields(payload)
	if len(fields) < 3 {
		return Network{}, fmt.Errorf("invalid scan entry: expected at least 3 fields, got %d", len(fields))
	}

	ecn, err := strconv.Atoi(fields[0])
	if err != nil {
		return Network{}, fmt.Errorf("invalid encryption: %w", err)
	}
	rssi, err := strconv.Atoi(fields[2])
	if err != nil {
		return Network{}, fmt.Errorf("invalid rssi: %w", err)
	}

	n := Network{
		SSID:     fields[1],
		RSSI:     rssi,
		Security: SecurityUnknown,
	}
	if ecn >= 0 && ecn < int(SecurityUnknown) {
		n.Security = Security(ecn)
	}
	if len(fields) > 4 {
		if ch, err := strconv.Atoi(fields[4]); err == nil {
			n.Channel = ch
		}
	}
	return n, nil
}

// parseJoinFailure maps the +CWJAP error code to a disconnect reason.
func parseJoinFailure(lines []string) Reason {
	for _, line := range lines {
		code, ok := strings.CutPrefix(line, "+CWJAP:")
		if !ok {
			continue
		}
		switch strings.TrimSpace(code) {
		case "1":
			return ReasonAssocLeave
		case "2":
			return ReasonAuthFail
		case "3":
			return ReasonNoAPFound
		case "4":
			return ReasonAssocFail
		}
	}
	return ReasonUnspecified
}

// parseStatus parses the AT+CWJAP? query response.
func parseStatus(lines []string) Status {
	for _, line := range lines {
		payload, ok := strings.CutPrefix(line, "+CWJAP:")
		if !ok {
			continue
		}
		fields := splitFields(payload)
		if len(fields) > 0 && fields[0] != "" {
			return Status{Connected: true, SSID: fields[0]}
		}
	}
	return Status{}
}
