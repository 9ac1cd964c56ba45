package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the lamp configuration.
type Config struct {
	Radio       RadioConfig       `yaml:"radio"`
	Mock        MockConfig        `yaml:"mock"`
	Store       StoreConfig       `yaml:"store"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Fingerprint FingerprintConfig `yaml:"fingerprint"`
	Portal      PortalConfig      `yaml:"portal"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Health      HealthConfig      `yaml:"health"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Button      ButtonConfig      `yaml:"button"`
	Log         LogConfig         `yaml:"log"`
}

// RadioConfig contains the serial link to the WiFi modem.
type RadioConfig struct {
	Port           string        `yaml:"port"`
	BaudRate       int           `yaml:"baud_rate"`
	CommandTimeout time.Duration `yaml:"command_timeout"` // Timeout for short AT commands
}

// MockNetwork describes one simulated access point.
type MockNetwork struct {
	SSID     string `yaml:"ssid"`
	RSSI     int    `yaml:"rssi"`
	Security string `yaml:"security"` // open, wep, wpa, wpa2, wpa_wpa2, wpa2_enterprise, wpa3, wpa2_wpa3
	Channel  int    `yaml:"channel"`
}

// MockConfig contains the simulated radio environment.
type MockConfig struct {
	Networks     []MockNetwork `yaml:"networks"`
	Passphrase   string        `yaml:"passphrase"`    // Passphrase accepted by every simulated network
	FailConnects int           `yaml:"fail_connects"` // Number of connection attempts to fail before succeeding
}

// StoreConfig selects the durable key-value store.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "file" or "sqlite"
	Path   string `yaml:"path"`   // Directory for "file", database file for "sqlite"
}

// AcquisitionConfig contains the connection acquisition policy.
type AcquisitionConfig struct {
	FirstSetupPortalTimeout time.Duration `yaml:"first_setup_portal_timeout"`
	InitialConnectTimeout   time.Duration `yaml:"initial_connect_timeout"`
	MaxConnectTimeout       time.Duration `yaml:"max_connect_timeout"`
	InitialRetryDelay       time.Duration `yaml:"initial_retry_delay"`
	MaxRetryDelay           time.Duration `yaml:"max_retry_delay"`
	RouterRebootBudget      time.Duration `yaml:"router_reboot_budget"`
	MaxRetries              int           `yaml:"max_retries"`
	PortalWindow            time.Duration `yaml:"portal_window"`          // Short portal window between known-network retries
	RelocationCheckAfter    int           `yaml:"relocation_check_after"` // Consecutive failures before fingerprint check
	WeakSignalDBm           int           `yaml:"weak_signal_dbm"`
}

// FingerprintConfig contains relocation detection parameters.
type FingerprintConfig struct {
	MatchPolicy string `yaml:"match_policy"` // "any" or "three_quarters"
}

// PortalConfig contains the operator configuration channel settings.
type PortalConfig struct {
	Listen       string `yaml:"listen"`
	APSSID       string `yaml:"ap_ssid"`
	APPassphrase string `yaml:"ap_passphrase"`
}

// SchedulerConfig contains lane timing.
type SchedulerConfig struct {
	FetchInterval      time.Duration `yaml:"fetch_interval"`
	FetchRetry         time.Duration `yaml:"fetch_retry"` // Delay after a failed fetch
	StalenessThreshold time.Duration `yaml:"staleness_threshold"`
	Slice              time.Duration `yaml:"slice"`      // Network lane sleep slice
	FrameRate          int           `yaml:"frame_rate"` // Render lane frames per second
	SunsetWindow       time.Duration `yaml:"sunset_window"`
	SunsetDuration     time.Duration `yaml:"sunset_duration"` // How long the render lane plays the sunset indication
}

// HealthConfig contains link health monitoring parameters.
type HealthConfig struct {
	CheckInterval     time.Duration `yaml:"check_interval"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	PingTarget        string        `yaml:"ping_target"` // Empty disables the ICMP probe
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	PingPrivileged    bool          `yaml:"ping_privileged"`
	SettleDelay       time.Duration `yaml:"settle_delay"` // Wait after reconnect before fetching
}

// FetchConfig contains the remote data source.
type FetchConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ButtonConfig contains the factory reset button.
type ButtonConfig struct {
	Pin  string        `yaml:"pin"` // GPIO name, empty disables the button
	Hold time.Duration `yaml:"hold"`
}

// LogConfig contains logging options.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Radio: RadioConfig{
			Port:           "/dev/ttyUSB0",
			BaudRate:       115200,
			CommandTimeout: 5 * time.Second,
		},
		Mock: MockConfig{
			Networks: []MockNetwork{
				{SSID: "HomeNet", RSSI: -52, Security: "wpa2", Channel: 6},
				{SSID: "Neighbor-2G", RSSI: -67, Security: "wpa2", Channel: 1},
				{SSID: "CoffeeShop", RSSI: -74, Security: "open", Channel: 11},
				{SSID: "Printer-Direct", RSSI: -80, Security: "wpa2", Channel: 6},
			},
			Passphrase:   "surfsup42",
			FailConnects: 0,
		},
		Store: StoreConfig{
			Driver: "file",
			Path:   "surflamp-data",
		},
		Acquisition: AcquisitionConfig{
			FirstSetupPortalTimeout: 17 * time.Minute,
			InitialConnectTimeout:   20 * time.Second,
			MaxConnectTimeout:       60 * time.Second,
			InitialRetryDelay:       5 * time.Second,
			MaxRetryDelay:           60 * time.Second,
			RouterRebootBudget:      5 * time.Minute,
			MaxRetries:              10,
			PortalWindow:            3 * time.Minute,
			RelocationCheckAfter:    3,
			WeakSignalDBm:           -85,
		},
		Fingerprint: FingerprintConfig{
			MatchPolicy: "any",
		},
		Portal: PortalConfig{
			Listen:       ":8080",
			APSSID:       "SurfLamp-Setup",
			APPassphrase: "surf123456",
		},
		Scheduler: SchedulerConfig{
			FetchInterval:      13 * time.Minute,
			FetchRetry:         time.Minute,
			StalenessThreshold: 30 * time.Minute,
			Slice:              time.Second,
			FrameRate:          100,
			SunsetWindow:       15 * time.Minute,
			SunsetDuration:     30 * time.Second,
		},
		Health: HealthConfig{
			CheckInterval:     10 * time.Second,
			ReconnectInterval: 10 * time.Second,
			MaxReconnects:     10,
			PingTarget:        "",
			PingTimeout:       2 * time.Second,
			SettleDelay:       10 * time.Second,
		},
		Fetch: FetchConfig{
			URL:     "http://localhost:5001/api/arduino/1/data",
			Timeout: 15 * time.Second,
		},
		Button: ButtonConfig{
			Pin:  "",
			Hold: 2 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Radio.Port == "" {
		c.Radio.Port = def.Radio.Port
	}
	if c.Radio.BaudRate == 0 {
		c.Radio.BaudRate = def.Radio.BaudRate
	}
	if c.Radio.CommandTimeout == 0 {
		c.Radio.CommandTimeout = def.Radio.CommandTimeout
	}

	if len(c.Mock.Networks) == 0 {
		c.Mock.Networks = def.Mock.Networks
	}

	if c.Store.Driver == "" {
		c.Store.Driver = def.Store.Driver
	}
	if c.Store.Path == "" {
		c.Store.Path = def.Store.Path
	}

	a, d := &c.Acquisition, def.Acquisition
	if a.FirstSetupPortalTimeout == 0 {
		a.FirstSetupPortalTimeout = d.FirstSetupPortalTimeout
	}
	if a.InitialConnectTimeout == 0 {
		a.InitialConnectTimeout = d.InitialConnectTimeout
	}
	if a.MaxConnectTimeout == 0 {
		a.MaxConnectTimeout = d.MaxConnectTimeout
	}
	if a.InitialRetryDelay == 0 {
		a.InitialRetryDelay = d.InitialRetryDelay
	}
	if a.MaxRetryDelay == 0 {
		a.MaxRetryDelay = d.MaxRetryDelay
	}
	if a.RouterRebootBudget == 0 {
		a.RouterRebootBudget = d.RouterRebootBudget
	}
	if a.MaxRetries == 0 {
		a.MaxRetries = d.MaxRetries
	}
	if a.PortalWindow == 0 {
		a.PortalWindow = d.PortalWindow
	}
	if a.RelocationCheckAfter == 0 {
		a.RelocationCheckAfter = d.RelocationCheckAfter
	}
	if a.WeakSignalDBm == 0 {
		a.WeakSignalDBm = d.WeakSignalDBm
	}

	if c.Fingerprint.MatchPolicy == "" {
		c.Fingerprint.MatchPolicy = def.Fingerprint.MatchPolicy
	}

	if c.Portal.Listen == "" {
		c.Portal.Listen = def.Portal.Listen
	}
	if c.Portal.APSSID == "" {
		c.Portal.APSSID = def.Portal.APSSID
	}
	if c.Portal.APPassphrase == "" {
		c.Portal.APPassphrase = def.Portal.APPassphrase
	}

	s, ds := &c.Scheduler, def.Scheduler
	if s.FetchInterval == 0 {
		s.FetchInterval = ds.FetchInterval
	}
	if s.FetchRetry == 0 {
		s.FetchRetry = ds.FetchRetry
	}
	if s.StalenessThreshold == 0 {
		s.StalenessThreshold = ds.StalenessThreshold
	}
	if s.Slice == 0 {
		s.Slice = ds.Slice
	}
	if s.FrameRate == 0 {
		s.FrameRate = ds.FrameRate
	}
	if s.SunsetWindow == 0 {
		s.SunsetWindow = ds.SunsetWindow
	}
	if s.SunsetDuration == 0 {
		s.SunsetDuration = ds.SunsetDuration
	}

	h, dh := &c.Health, def.Health
	if h.CheckInterval == 0 {
		h.CheckInterval = dh.CheckInterval
	}
	if h.ReconnectInterval == 0 {
		h.ReconnectInterval = dh.ReconnectInterval
	}
	if h.MaxReconnects == 0 {
		h.MaxReconnects = dh.MaxReconnects
	}
	if h.PingTimeout == 0 {
		h.PingTimeout = dh.PingTimeout
	}
	if h.SettleDelay == 0 {
		h.SettleDelay = dh.SettleDelay
	}

	if c.Fetch.URL == "" {
		c.Fetch.URL = def.Fetch.URL
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = def.Fetch.Timeout
	}

	if c.Button.Hold == 0 {
		c.Button.Hold = def.Button.Hold
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}
