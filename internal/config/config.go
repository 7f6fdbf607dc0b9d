// Package config loads drmpolicy settings from the config file, the
// environment and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opentdf/drmpolicy/pkg/media"
	"github.com/opentdf/drmpolicy/pkg/policy"
	"github.com/opentdf/drmpolicy/pkg/token"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "DRMPOLICY"
	DirName   = ".drmpolicy"
	FileName  = "config"
)

type Config struct {
	Store       StoreConfig       `mapstructure:"store" yaml:"store"`
	KeyDelivery KeyDeliveryConfig `mapstructure:"keydelivery" yaml:"keydelivery"`
	Streaming   StreamingConfig   `mapstructure:"streaming" yaml:"streaming"`
	Policy      PolicyConfig      `mapstructure:"policy" yaml:"policy"`
	Token       TokenConfig       `mapstructure:"token" yaml:"token"`
	FairPlay    FairPlayConfig    `mapstructure:"fairplay" yaml:"fairplay"`
	HSM         HSMConfig         `mapstructure:"hsm" yaml:"hsm,omitempty"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Serve       ServeConfig       `mapstructure:"serve" yaml:"serve,omitempty"`
}

// StoreConfig selects the media store backend: "memory", "postgres" or
// "http".
type StoreConfig struct {
	Driver       string        `mapstructure:"driver" yaml:"driver"`
	URL          string        `mapstructure:"url" yaml:"url,omitempty"`
	Endpoint     string        `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Issuer       string        `mapstructure:"issuer" yaml:"issuer,omitempty"`
	ClientID     string        `mapstructure:"clientid" yaml:"clientid,omitempty"`
	ClientSecret string        `mapstructure:"clientsecret" yaml:"clientsecret,omitempty"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

type KeyDeliveryConfig struct {
	BaseURL string `mapstructure:"baseurl" yaml:"baseurl"`
}

// StreamingConfig.Origin prefixes every locator path the store creates.
type StreamingConfig struct {
	Origin string `mapstructure:"origin" yaml:"origin"`
}

type PolicyConfig struct {
	Common    string `mapstructure:"common" yaml:"common"`
	CommonCbc string `mapstructure:"commoncbc" yaml:"commoncbc"`
}

type TokenConfig struct {
	Restricted bool   `mapstructure:"restricted" yaml:"restricted"`
	Type       string `mapstructure:"type" yaml:"type"`
	Issuer     string `mapstructure:"issuer" yaml:"issuer,omitempty"`
	Audience   string `mapstructure:"audience" yaml:"audience,omitempty"`
	Key        string `mapstructure:"key" yaml:"key,omitempty"`
	KidClaim   bool   `mapstructure:"kidclaim" yaml:"kidclaim"`
}

type FairPlayConfig struct {
	ASK          string `mapstructure:"ask" yaml:"ask,omitempty"`
	CertFile     string `mapstructure:"certfile" yaml:"certfile,omitempty"`
	CertPassword string `mapstructure:"certpassword" yaml:"certpassword,omitempty"`
}

type HSMConfig struct {
	Module string `mapstructure:"module" yaml:"module,omitempty"`
	Slot   uint   `mapstructure:"slot" yaml:"slot,omitempty"`
	Pin    string `mapstructure:"pin" yaml:"pin,omitempty"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

type ServeConfig struct {
	Addr   string   `mapstructure:"addr" yaml:"addr,omitempty"`
	Issuer string   `mapstructure:"issuer" yaml:"issuer,omitempty"`
	CORS   []string `mapstructure:"cors" yaml:"cors,omitempty"`
}

// SetDefaults registers the default of every key so that environment
// variables are picked up by Unmarshal even without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.url", "")
	v.SetDefault("store.endpoint", "")
	v.SetDefault("store.issuer", "")
	v.SetDefault("store.clientid", "")
	v.SetDefault("store.clientsecret", "")
	v.SetDefault("store.timeout", 30*time.Second)
	v.SetDefault("keydelivery.baseurl", "https://keydelivery.example.com/")
	v.SetDefault("streaming.origin", "https://origin.example.com/")
	v.SetDefault("policy.common", policy.DefaultCommonName)
	v.SetDefault("policy.commoncbc", policy.DefaultCommonCbcsName)
	v.SetDefault("token.restricted", false)
	v.SetDefault("token.type", string(token.JWT))
	v.SetDefault("token.issuer", "")
	v.SetDefault("token.audience", "")
	v.SetDefault("token.key", "")
	v.SetDefault("token.kidclaim", true)
	v.SetDefault("fairplay.ask", "")
	v.SetDefault("fairplay.certfile", "")
	v.SetDefault("fairplay.certpassword", "")
	v.SetDefault("hsm.module", "")
	v.SetDefault("hsm.slot", 0)
	v.SetDefault("hsm.pin", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("serve.addr", "0.0.0.0:8080")
	v.SetDefault("serve.issuer", "")
	v.SetDefault("serve.cors", []string{})
}

// Dir returns $HOME/.drmpolicy.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DirName), nil
}

// Load reads file, or the default config file when file is empty, and
// overlays DRMPOLICY_* environment variables. A missing default file is
// not an error.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
	} else {
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(DirName)
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, errors.Join(media.ErrConfiguration, fmt.Errorf("could not read config: %w", err))
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Join(media.ErrConfiguration, fmt.Errorf("could not decode config: %w", err))
	}
	return c, nil
}

// Save writes c as yaml, creating the directory when needed.
func Save(c Config, file string) error {
	if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
		return err
	}
	out, err := yaml.Marshal(&c)
	if err != nil {
		return fmt.Errorf("could not marshal configuration: %w", err)
	}
	return os.WriteFile(file, out, 0o600)
}

// TokenRequirements returns the token restriction, or nil when key
// delivery is open.
func (c Config) TokenRequirements() (*token.Requirements, error) {
	if !c.Token.Restricted {
		return nil, nil
	}
	typ, err := token.ParseType(c.Token.Type)
	if err != nil {
		return nil, err
	}
	r := &token.Requirements{
		Type:              typ,
		VerificationKey:   c.Token.Key,
		Issuer:            c.Token.Issuer,
		Audience:          c.Token.Audience,
		RequireKeyIDClaim: c.Token.KidClaim,
	}
	if _, err := token.Build(*r); err != nil {
		return nil, err
	}
	return r, nil
}

// FairPlayCertificate reads the pfx file named by fairplay.certfile.
func (c Config) FairPlayCertificate() ([]byte, error) {
	if c.FairPlay.CertFile == "" {
		return nil, errors.Join(media.ErrConfiguration, errors.New("fairplay.certfile is not set"))
	}
	b, err := os.ReadFile(c.FairPlay.CertFile)
	if err != nil {
		return nil, errors.Join(media.ErrConfiguration, fmt.Errorf("could not read fairplay certificate: %w", err))
	}
	return b, nil
}
