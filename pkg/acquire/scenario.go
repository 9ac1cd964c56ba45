// Package acquire turns "no confirmed link" into "confirmed link", choosing
// a timeout and retry policy from the failure scenario it detects.
package acquire

import (
	"errors"
	"fmt"
	"time"

	"github.com/itohio/surflamp/pkg/radio"
)

var (
	// ErrFatal is returned when even the indefinite configuration portal cannot be started.
	ErrFatal = errors.New("acquire: configuration portal unavailable")
	// ErrPortalClosed is returned when a portal session ends without a result.
	ErrPortalClosed = errors.New("acquire: portal session closed")
)

// Scenario selects the acquisition policy. It is computed per acquisition and never persisted.
type Scenario int32

const (
	// FirstSetup: no stored credentials.
	FirstSetup Scenario = iota
	// RouterReboot: stored credentials, assume the router is temporarily gone.
	RouterReboot
	// KnownNetworkFailing: stored credentials keep failing after recovery gave up.
	KnownNetworkFailing
	// RelocatedSuspected: the radio environment no longer matches the fingerprint.
	RelocatedSuspected
)

var scenarioNames = [...]string{
	FirstSetup:          "first_setup",
	RouterReboot:        "router_reboot",
	KnownNetworkFailing: "known_network_failing",
	RelocatedSuspected:  "relocated_suspected",
}

func (s Scenario) String() string {
	if s >= 0 && int(s) < len(scenarioNames) {
		return scenarioNames[s]
	}
	return fmt.Sprintf("Scenario(%d)", int32(s))
}

// Attempt describes one iteration of a retry loop.
type Attempt struct {
	Index      int
	Timeout    time.Duration
	Diagnostic string
	Elapsed    time.Duration
}

// LinkHealth tracks consecutive failures. It is reset on every successful connection.
type LinkHealth struct {
	Failures   int
	Reason     radio.Reason
	Diagnostic string
}

// backoff returns initial doubled attempt-1 times, capped at ceiling.
func backoff(initial, ceiling time.Duration, attempt int) time.Duration {
	d := initial
	for i := 1; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	if ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}
