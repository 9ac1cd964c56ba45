package acquire

import (
	"context"

	"github.com/itohio/surflamp/pkg/radio"
)

// Portal is the operator configuration channel.
type Portal interface {
	// Start opens a session showing notice. Submitted credentials arrive on
	// the returned channel until Stop.
	Start(ctx context.Context, notice string) (<-chan radio.Credentials, error)
	// Notify replaces the notice of the open session.
	Notify(notice string)
	// Stop closes the session.
	Stop() error
}

// Locator judges relocation from the radio environment.
type Locator interface {
	Update(ctx context.Context, target string) error
	IsSameLocation(ctx context.Context) bool
}
