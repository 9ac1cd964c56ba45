package acquire

import (
	"fmt"

	"github.com/itohio/surflamp/pkg/radio"
)

// Failure is the classified cause of a failed attempt.
type Failure int

const (
	FailureUnknown Failure = iota
	FailureNoNetworks
	FailureNotFound
	FailureWeakSignal
	FailureIncompatibleSecurity
	FailureAuthRejected
)

// Diagnosis is a classified failure with its operator-facing explanation.
type Diagnosis struct {
	Failure Failure
	Message string
}

// RelocatedMessage is shown in the portal after relocation was detected.
const RelocatedMessage = "Moved to new location. Please reconfigure WiFi."

// Classify explains why joining target failed, using a scan of the
// surroundings. reason is the radio's disconnect code for the fallback.
func Classify(networks []radio.Network, target string, reason radio.Reason, weakSignalDBm int) Diagnosis {
	if len(networks) == 0 {
		return Diagnosis{
			Failure: FailureNoNetworks,
			Message: "No WiFi networks found. Check if router is powered on and in range.",
		}
	}

	best := -1
	for i, n := range networks {
		if n.SSID != target {
			continue
		}
		if best < 0 || n.RSSI > networks[best].RSSI {
			best = i
		}
	}
	if best < 0 {
		return Diagnosis{
			Failure: FailureNotFound,
			Message: fmt.Sprintf("Network '%s' not found. Check the name (case-sensitive), "+
				"that the router's 2.4GHz band is enabled and that it is in range.", target),
		}
	}

	n := networks[best]
	switch {
	case n.RSSI < weakSignalDBm:
		return Diagnosis{
			Failure: FailureWeakSignal,
			Message: fmt.Sprintf("Weak signal (%d dBm). Move lamp closer to router or use WiFi extender.", n.RSSI),
		}
	case n.Security == radio.SecurityWPA3:
		return Diagnosis{
			Failure: FailureIncompatibleSecurity,
			Message: "Router uses WPA3 security. The lamp requires WPA2. Change router to WPA2/WPA3 mixed mode.",
		}
	case reason.IsAuthRejection():
		return Diagnosis{
			Failure: FailureAuthRejected,
			Message: fmt.Sprintf("%s. Check the password for '%s'.", reason, target),
		}
	}
	return Diagnosis{Failure: FailureUnknown, Message: reasonMessage(reason)}
}

func reasonMessage(reason radio.Reason) string {
	if reason == radio.ReasonNone {
		return "Connection failed"
	}
	return reason.String()
}
