package radio

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/itohio/surflamp/pkg/store"
)

func TestReason_String(t *testing.T) {
	tests := []struct {
		reason Reason
		want   string
	}{
		{ReasonUnspecified, "Unspecified error"},
		{ReasonAuthExpire, "Wrong password or WiFi name"},
		{ReasonNotAuthed, "Wrong password or WiFi name"},
		{ReasonAssocExpire, "Disassociated (inactive)"},
		{ReasonAssocTooMany, "Too many devices connected to AP"},
		{ReasonNotAssoced, "Wrong password"},
		{ReasonAssocLeave, "Connection timeout - check WiFi name and password"},
		{ReasonHandshakeTimeout, "Wrong password"},
		{Reason8021XAuthFailed, "Wrong password (too many failed attempts)"},
		{ReasonBeaconTimeout, "WiFi signal lost - router may be off or out of range"},
		{ReasonNoAPFound, "WiFi network not found - check WiFi name"},
		{ReasonAuthFail, "Wrong password"},
		{ReasonAssocFail, "Router rejected connection - check password"},
		{ReasonHandshakeTimeoutLong, "Wrong password"},
		{Reason(99), "Connection failed (code: 99)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.reason.String(), "reason %d", tt.reason)
	}
}

func TestReasonOf(t *testing.T) {
	err := fmt.Errorf("attempt 3: %w", &ConnectError{SSID: "x", Reason: ReasonNoAPFound})
	assert.Equal(t, ReasonNoAPFound, ReasonOf(err))
	assert.Equal(t, ReasonNone, ReasonOf(fmt.Errorf("other")))
	assert.True(t, ReasonAuthFail.IsAuthRejection())
	assert.False(t, ReasonNoAPFound.IsAuthRejection())
}

func TestParseSecurity(t *testing.T) {
	assert.Equal(t, SecurityWPA2, ParseSecurity("WPA2"))
	assert.Equal(t, SecurityWPA2WPA3, ParseSecurity(" wpa2_wpa3 "))
	assert.Equal(t, SecurityUnknown, ParseSecurity("rot13"))
	assert.Equal(t, "wpa3", SecurityWPA3.String())
}

func TestCredentials_Persistence(t *testing.T) {
	s := store.NewMemory()

	_, ok, err := LoadCredentials(s)
	assert.NoError(t, err)
	assert.False(t, ok)

	creds := Credentials{SSID: "HomeNet", Passphrase: "surfsup42"}
	assert.NoError(t, SaveCredentials(s, creds))
	got, ok, err := LoadCredentials(s)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, creds, got)

	assert.Error(t, SaveCredentials(s, Credentials{}))

	assert.NoError(t, ClearCredentials(s))
	_, ok, _ = LoadCredentials(s)
	assert.False(t, ok)

	// Corrupt records read as absent
	assert.NoError(t, s.Save(CredentialsKey, []byte("ssid: [")))
	_, ok, err = LoadCredentials(s)
	assert.NoError(t, err)
	assert.False(t, ok)
}
