package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Inim          InimConfig          `yaml:"inim"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Log           string              `yaml:"log"`
	Cache         bool                `yaml:"cache"`
}

type InimConfig struct {
	Email        string          `yaml:"email"`
	Password     string          `yaml:"password"`
	UserCode     string          `yaml:"user_code"`
	DeviceID     int             `yaml:"device_id"`
	ScanInterval int             `yaml:"scan_interval"`
	MaxBackoff   int             `yaml:"max_backoff"`
	Scenarios    ScenariosConfig `yaml:"scenarios"`
}

// ScenariosConfig pins scenario roles explicitly. When any field is set the
// name-based auto-detection is skipped entirely.
type ScenariosConfig struct {
	ArmAway int `yaml:"arm_away"`
	ArmHome int `yaml:"arm_home"`
	Disarm  int `yaml:"disarm"`
}

type MQTTConfig struct {
	ClientID  string `yaml:"client_id"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Keepalive int    `yaml:"keepalive"`
	Password  string `yaml:"password"`
	QOS       int    `yaml:"qos"`
	Retain    bool   `yaml:"retain"`
	Username  string `yaml:"username"`
	Prefix    string `yaml:"prefix"`
	Clean     bool   `yaml:"clean"`
}

type HomeAssistantConfig struct {
	Discovery bool   `yaml:"discovery"`
	Prefix    string `yaml:"prefix"`
}

const (
	// MinScanInterval and MaxScanInterval bound the polling interval in
	// seconds. The cloud rate-limits aggressive pollers.
	MinScanInterval = 10
	MaxScanInterval = 300

	DefaultScanInterval = 30
	DefaultMaxBackoff   = 300

	// ScenarioUnset marks a scenario role as not explicitly configured.
	ScenarioUnset = -1
)

func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	config := Config{
		Inim: InimConfig{
			Scenarios: ScenariosConfig{
				ArmAway: ScenarioUnset,
				ArmHome: ScenarioUnset,
				Disarm:  ScenarioUnset,
			},
		},
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Inim.ScanInterval == 0 {
		config.Inim.ScanInterval = DefaultScanInterval
	}
	if config.Inim.ScanInterval < MinScanInterval {
		config.Inim.ScanInterval = MinScanInterval
	}
	if config.Inim.ScanInterval > MaxScanInterval {
		config.Inim.ScanInterval = MaxScanInterval
	}
	if config.Inim.MaxBackoff == 0 {
		config.Inim.MaxBackoff = DefaultMaxBackoff
	}
	if config.MQTT.ClientID == "" {
		config.MQTT.ClientID = "inim2mqtt"
	}
	if config.MQTT.Host == "" {
		config.MQTT.Host = "localhost"
	}
	if config.MQTT.Port == 0 {
		config.MQTT.Port = 1883
	}
	if config.MQTT.Keepalive == 0 {
		config.MQTT.Keepalive = 60
	}
	if config.MQTT.Prefix == "" {
		config.MQTT.Prefix = "inim2mqtt"
	}
	if config.HomeAssistant.Prefix == "" {
		config.HomeAssistant.Prefix = "homeassistant"
	}
	if config.Log == "" {
		config.Log = "info"
	}
}

func validate(config *Config) error {
	if config.Inim.Email == "" {
		return fmt.Errorf("inim.email is required")
	}
	if config.Inim.Password == "" {
		return fmt.Errorf("inim.password is required")
	}
	if config.Inim.MaxBackoff < config.Inim.ScanInterval {
		return fmt.Errorf("inim.max_backoff must be at least the scan interval (%ds)", config.Inim.ScanInterval)
	}
	return nil
}
