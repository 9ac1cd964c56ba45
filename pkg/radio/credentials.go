package radio

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/itohio/surflamp/pkg/store"
)

// CredentialsKey is the store key of the WiFi credentials record.
const CredentialsKey = "wifi_credentials"

// LoadCredentials returns the persisted credentials. ok is false when none are
// stored or the record is unreadable.
func LoadCredentials(s store.Store) (creds Credentials, ok bool, err error) {
	data, err := s.Load(CredentialsKey)
	if errors.Is(err, store.ErrNotFound) {
		return Credentials{}, false, nil
	} else if err != nil {
		return Credentials{}, false, fmt.Errorf("failed to load credentials: %w", err)
	}

	// Records carry no version; an unparseable record counts as absent.
	if err := yaml.Unmarshal(data, &creds); err != nil || creds.SSID == "" {
		return Credentials{}, false, nil
	}
	return creds, true, nil
}

// SaveCredentials replaces the persisted credentials.
func SaveCredentials(s store.Store, creds Credentials) error {
	if creds.SSID == "" {
		return fmt.Errorf("refusing to save credentials without SSID")
	}
	data, err := yaml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := s.Save(CredentialsKey, data); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// ClearCredentials wipes the persisted credentials.
func ClearCredentials(s store.Store) error {
	return s.Delete(CredentialsKey)
}
