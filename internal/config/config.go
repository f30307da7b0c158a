package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker              string `mapstructure:"MQTT_BROKER"`
	MQTTClientID            string `mapstructure:"MQTT_CLIENT_ID"`
	MQTTUsername            string `mapstructure:"MQTT_USERNAME"`
	MQTTPassword            string `mapstructure:"MQTT_PASSWORD"`
	MQTTReconnectIntervalMS int    `mapstructure:"MQTT_RECONNECT_INTERVAL_MS"`

	// Race
	RaceID        string `mapstructure:"RACE_ID"` // empty on a signal boat: a room code is generated
	Role          string `mapstructure:"ROLE"`    // admin | observer
	ParticipantID string `mapstructure:"PARTICIPANT_ID"`

	// GPS
	GPSSource             string  `mapstructure:"GPS_SOURCE"` // nmea | gpsd | mock
	GPSSerialPort         string  `mapstructure:"GPS_SERIAL_PORT"`
	GPSBaudRate           int     `mapstructure:"GPS_BAUD_RATE"`
	GPSDAddr              string  `mapstructure:"GPSD_ADDR"`
	GPSMockLat            float64 `mapstructure:"GPS_MOCK_LAT"`
	GPSMockLng            float64 `mapstructure:"GPS_MOCK_LNG"`
	GPSMaxAccuracyM       float64 `mapstructure:"GPS_MAX_ACCURACY_M"`
	GPSMaxJumpM           float64 `mapstructure:"GPS_MAX_JUMP_M"`
	GPSThrottleMS         int     `mapstructure:"GPS_THROTTLE_MS"`
	GPSStaleTimeoutMS     int     `mapstructure:"GPS_STALE_TIMEOUT_MS"`
	GPSFallbackIntervalMS int     `mapstructure:"GPS_FALLBACK_INTERVAL_MS"`
	HeadingHysteresisDeg  float64 `mapstructure:"HEADING_HYSTERESIS_DEG"`

	// Sync
	AdminHeartbeatS    int  `mapstructure:"ADMIN_HEARTBEAT_S"`
	ObserverHeartbeatS int  `mapstructure:"OBSERVER_HEARTBEAT_S"`
	PresenceExpiryS    int  `mapstructure:"PRESENCE_EXPIRY_S"`
	LegacyExpiryS      int  `mapstructure:"LEGACY_EXPIRY_S"`
	SyncPublishLegacy  bool `mapstructure:"SYNC_PUBLISH_LEGACY"`
	RosterExpiryS      int  `mapstructure:"ROSTER_EXPIRY_S"`

	// Health
	DataStaleS     int     `mapstructure:"DATA_STALE_S"`
	RemoteWarnS    int     `mapstructure:"REMOTE_WARN_S"`
	RemoteAlertS   int     `mapstructure:"REMOTE_ALERT_S"`
	GPSInaccurateM float64 `mapstructure:"GPS_INACCURATE_M"`

	// Settings storage
	SettingsBackend string `mapstructure:"SETTINGS_BACKEND"` // badger | redis | memory
	SettingsPath    string `mapstructure:"SETTINGS_PATH"`
	RedisURL        string `mapstructure:"REDIS_URL"`

	// Course
	CourseTopology string `mapstructure:"COURSE_TOPOLOGY"`

	// Web Server
	WebServerPort int `mapstructure:"WEB_SERVER_PORT"`

	// Display
	DisplayI2CAddr        uint16 `mapstructure:"-"`
	DisplayUpdateInterval int    `mapstructure:"DISPLAY_UPDATE_INTERVAL"` // milliseconds
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

var defaults = map[string]any{
	"MQTT_BROKER":                "",
	"MQTT_CLIENT_ID":             "",
	"MQTT_USERNAME":              "",
	"MQTT_PASSWORD":              "",
	"MQTT_RECONNECT_INTERVAL_MS": 3000,
	"RACE_ID":                    "",
	"ROLE":                       "observer",
	"PARTICIPANT_ID":             "",
	"GPS_SOURCE":                 "nmea",
	"GPS_SERIAL_PORT":            "/dev/serial0",
	"GPS_BAUD_RATE":              9600,
	"GPSD_ADDR":                  "localhost:2947",
	"GPS_MOCK_LAT":               22.3193,
	"GPS_MOCK_LNG":               114.1694,
	"GPS_MAX_ACCURACY_M":         30.0,
	"GPS_MAX_JUMP_M":             2000.0,
	"GPS_THROTTLE_MS":            1000,
	"GPS_STALE_TIMEOUT_MS":       2500,
	"GPS_FALLBACK_INTERVAL_MS":   5000,
	"HEADING_HYSTERESIS_DEG":     3.0,
	"ADMIN_HEARTBEAT_S":          15,
	"OBSERVER_HEARTBEAT_S":       25,
	"PRESENCE_EXPIRY_S":          60,
	"LEGACY_EXPIRY_S":            300,
	"SYNC_PUBLISH_LEGACY":        false,
	"ROSTER_EXPIRY_S":            60,
	"DATA_STALE_S":               30,
	"REMOTE_WARN_S":              35,
	"REMOTE_ALERT_S":             55,
	"GPS_INACCURATE_M":           100.0,
	"SETTINGS_BACKEND":           "badger",
	"SETTINGS_PATH":              "./data/settings",
	"REDIS_URL":                  "",
	"COURSE_TOPOLOGY":            "simple",
	"WEB_SERVER_PORT":            8080,
	"DISPLAY_I2C_ADDR":           "0x3C",
	"DISPLAY_UPDATE_INTERVAL":    500,
}

// Load reads the KEY=VALUE configuration file and returns a Config
// struct. Environment variables with the same names take precedence.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetConfigFile(configPath)
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	// viper lowercases keys
	for _, key := range v.AllKeys() {
		if _, known := defaults[strings.ToUpper(key)]; !known {
			return nil, fmt.Errorf("unknown config key: %q", strings.ToUpper(key))
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	addr, err := strconv.ParseUint(v.GetString("DISPLAY_I2C_ADDR"), 0, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", v.GetString("DISPLAY_I2C_ADDR"), err)
	}
	cfg.DisplayI2CAddr = uint16(addr)

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	switch c.Role {
	case "admin", "observer":
	default:
		return fmt.Errorf("ROLE must be admin or observer, got %q", c.Role)
	}
	switch c.GPSSource {
	case "nmea":
		if c.GPSSerialPort == "" {
			return fmt.Errorf("GPS_SERIAL_PORT is required")
		}
		if c.GPSBaudRate == 0 {
			return fmt.Errorf("GPS_BAUD_RATE is required")
		}
	case "gpsd":
		if c.GPSDAddr == "" {
			return fmt.Errorf("GPSD_ADDR is required")
		}
	case "mock":
	default:
		return fmt.Errorf("GPS_SOURCE must be nmea, gpsd or mock, got %q", c.GPSSource)
	}
	if c.GPSMaxAccuracyM <= 0 {
		return fmt.Errorf("GPS_MAX_ACCURACY_M must be positive")
	}
	if c.SettingsBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required for the redis settings backend")
	}
	if c.RemoteAlertS < c.RemoteWarnS {
		return fmt.Errorf("REMOTE_ALERT_S (%d) must not be below REMOTE_WARN_S (%d)", c.RemoteAlertS, c.RemoteWarnS)
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
func sec(n int) time.Duration { return time.Duration(n) * time.Second }

// ReconnectInterval spaces first-connect attempts and caps the
// reconnect backoff after a drop.
func (c *Config) ReconnectInterval() time.Duration { return ms(c.MQTTReconnectIntervalMS) }

func (c *Config) GPSThrottle() time.Duration         { return ms(c.GPSThrottleMS) }
func (c *Config) GPSStaleTimeout() time.Duration     { return ms(c.GPSStaleTimeoutMS) }
func (c *Config) GPSFallbackInterval() time.Duration { return ms(c.GPSFallbackIntervalMS) }
func (c *Config) AdminHeartbeat() time.Duration      { return sec(c.AdminHeartbeatS) }
func (c *Config) ObserverHeartbeat() time.Duration   { return sec(c.ObserverHeartbeatS) }
func (c *Config) PresenceExpiry() time.Duration      { return sec(c.PresenceExpiryS) }
func (c *Config) LegacyExpiry() time.Duration        { return sec(c.LegacyExpiryS) }
func (c *Config) RosterExpiry() time.Duration        { return sec(c.RosterExpiryS) }
func (c *Config) DataStale() time.Duration           { return sec(c.DataStaleS) }
func (c *Config) RemoteWarn() time.Duration          { return sec(c.RemoteWarnS) }
func (c *Config) RemoteAlert() time.Duration         { return sec(c.RemoteAlertS) }

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
// This is the only function that can set globalConfig.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
