package config

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	yaml "gopkg.in/yaml.v2"
)

// reading config error is fatal, and exists main thread
func processError(err error) {
	fmt.Println(err)
	os.Exit(2)
}

func readFile(path string, cfg *Configuration) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening config file")
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return errors.Wrapf(err, "decoding %s", path)
	}
	return nil
}

func readEnv(cfg *Configuration) error {
	return errors.Wrap(envconfig.Process("", cfg), "reading environment")
}

// wei is a non-empty decimal unsigned integer, no sign, no fraction.
func validWei(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	if v == "" {
		return false
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("wei", validWei); err != nil {
		panic(err)
	}
	return v
}

// Validate checks struct tags and the optional warden address override.
func (c *Configuration) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	if c.Warden.Address != "" {
		if err := ValidateAddress(c.Warden.Address); err != nil {
			return errors.Wrapf(err, "invalid warden address %q", c.Warden.Address)
		}
	}
	return nil
}

// Load reads the YAML file at path, applies environment overrides and defaults, then validates.
func Load(path string) (*Configuration, error) {
	cfg := &Configuration{}
	if err := readFile(path, cfg); err != nil {
		return nil, err
	}
	if err := readEnv(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Init is Load for the main thread: any error terminates the process.
func Init(path string) *Configuration {
	cfg, err := Load(path)
	if err != nil {
		processError(err)
	}
	return cfg
}
