package radio

import (
	"context"
	"time"
)

// Radio is the single WiFi radio of the lamp (real or mocked).
// All methods may block and must only be called from the network lane.
type Radio interface {
	// Scan performs an active scan. An empty result is not an error.
	Scan(ctx context.Context) ([]Network, error)
	// Connect joins the network, waiting at most timeout. Failures are *ConnectError.
	Connect(ctx context.Context, creds Credentials, timeout time.Duration) error
	Disconnect(ctx context.Context) error
	Status(ctx context.Context) (Status, error)
	// StartAccessPoint brings up the local setup access point next to the station.
	StartAccessPoint(ctx context.Context, ssid, passphrase string) error
	StopAccessPoint(ctx context.Context) error
	Close() error
}

// Ensure Serial implements Radio.
var _ Radio = (*Serial)(nil)

// Ensure Mock implements Radio.
var _ Radio = (*Mock)(nil)
