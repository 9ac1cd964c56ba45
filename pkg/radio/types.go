package radio

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConnected is returned by operations that need an open modem link.
var ErrNotConnected = errors.New("radio: not connected")

// Security is the authentication mode advertised by an access point.
type Security uint8

const (
	SecurityOpen Security = iota
	SecurityWEP
	SecurityWPA
	SecurityWPA2
	SecurityWPAWPA2
	SecurityWPA2Enterprise
	SecurityWPA3
	SecurityWPA2WPA3
	SecurityUnknown
)

var securityNames = map[Security]string{
	SecurityOpen:           "open",
	SecurityWEP:            "wep",
	SecurityWPA:            "wpa",
	SecurityWPA2:           "wpa2",
	SecurityWPAWPA2:        "wpa_wpa2",
	SecurityWPA2Enterprise: "wpa2_enterprise",
	SecurityWPA3:           "wpa3",
	SecurityWPA2WPA3:       "wpa2_wpa3",
}

func (s Security) String() string {
	if name, ok := securityNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseSecurity parses the names used in configuration files.
func ParseSecurity(name string) Security {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range securityNames {
		if n == name {
			return s
		}
	}
	return SecurityUnknown
}

// Network is one entry of an active scan.
type Network struct {
	SSID     string
	RSSI     int // dBm
	Security Security
	Channel  int
}

// Credentials identify and unlock the target network.
type Credentials struct {
	SSID       string `yaml:"ssid"`
	Passphrase string `yaml:"passphrase"`
}

// Status is the station link state.
type Status struct {
	Connected bool
	SSID      string
	Reason    Reason // Last disconnect reason, zero if none
}

// Reason is a station disconnect reason code.
type Reason uint8

// Disconnect reasons reported by the radio.
const (
	ReasonNone                 Reason = 0
	ReasonUnspecified          Reason = 1
	ReasonAuthExpire           Reason = 2
	ReasonAuthLeave            Reason = 3
	ReasonAssocExpire          Reason = 4
	ReasonAssocTooMany         Reason = 5
	ReasonNotAuthed            Reason = 6
	ReasonNotAssoced           Reason = 7
	ReasonAssocLeave           Reason = 8
	ReasonHandshakeTimeout     Reason = 15
	Reason8021XAuthFailed      Reason = 23
	ReasonBeaconTimeout        Reason = 201
	ReasonNoAPFound            Reason = 202
	ReasonAuthFail             Reason = 203
	ReasonAssocFail            Reason = 204
	ReasonHandshakeTimeoutLong Reason = 205
)

// String returns a human readable explanation of the reason code.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonUnspecified:
		return "Unspecified error"
	case ReasonAuthExpire, ReasonAuthLeave, ReasonNotAuthed:
		return "Wrong password or WiFi name"
	case ReasonAssocExpire:
		return "Disassociated (inactive)"
	case ReasonAssocTooMany:
		return "Too many devices connected to AP"
	case ReasonNotAssoced, ReasonHandshakeTimeout, ReasonAuthFail, ReasonHandshakeTimeoutLong:
		return "Wrong password"
	case ReasonAssocLeave:
		return "Connection timeout - check WiFi name and password"
	case Reason8021XAuthFailed:
		return "Wrong password (too many failed attempts)"
	case ReasonBeaconTimeout:
		return "WiFi signal lost - router may be off or out of range"
	case ReasonNoAPFound:
		return "WiFi network not found - check WiFi name"
	case ReasonAssocFail:
		return "Router rejected connection - check password"
	default:
		return fmt.Sprintf("Connection failed (code: %d)", uint8(r))
	}
}

// IsAuthRejection reports whether the access point refused the credentials.
func (r Reason) IsAuthRejection() bool {
	switch r {
	case ReasonAuthExpire, ReasonAuthLeave, ReasonNotAuthed, ReasonNotAssoced,
		ReasonHandshakeTimeout, Reason8021XAuthFailed, ReasonAuthFail,
		ReasonAssocFail, ReasonHandshakeTimeoutLong:
		return true
	}
	return false
}

// ConnectError is returned when a connection attempt fails.
type ConnectError struct {
	SSID   string
	Reason Reason
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %q: %s", e.SSID, e.Reason)
}

// ReasonOf extracts the disconnect reason from err, or ReasonNone.
func ReasonOf(err error) Reason {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ReasonNone
}
