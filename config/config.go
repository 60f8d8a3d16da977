package config

import (
	"math/big"
	"time"
)

type Configuration struct {
	// Server config
	Server struct {
		HTTPAddr  string        `yaml:"http_addr" split_words:"true"`
		LogDir    string        `yaml:"log_dir" split_words:"true"` // empty means stderr only
		LogLevel  string        `yaml:"log_level" split_words:"true" validate:"omitempty,oneof=debug info warn error"`
		LogFormat string        `yaml:"log_format" split_words:"true" validate:"omitempty,oneof=console json"`
		Interval  time.Duration `yaml:"interval" split_words:"true"` // pause between relay passes in serve mode
	} `yaml:"server" envconfig:"server"`
	// per role connection parameters, contract addresses and ABIs come from contract_info
	Chains struct {
		Source      ChainConfig `yaml:"source" envconfig:"source"`
		Destination ChainConfig `yaml:"destination" envconfig:"destination"`
	} `yaml:"chains" envconfig:"chains"`
	ContractInfo string `yaml:"contract_info" split_words:"true" validate:"required"`
	// important private stuff, overrides the warden entry of contract_info when set
	Warden struct {
		Address    string `yaml:"address" split_words:"true"`
		PrivateKey string `yaml:"private_key" split_words:"true"`
	} `yaml:"warden" envconfig:"warden"`
	Relay RelayConfig `yaml:"relay" envconfig:"relay"`
	Store StoreConfig `yaml:"store" envconfig:"store"`
}

type ChainConfig struct {
	Name    string   `yaml:"name" split_words:"true"`
	RPCList []string `yaml:"rpc" split_words:"true" validate:"required,min=1,dive,url"`
	// 0 means ask the node
	ChainID int64 `yaml:"chain_id" split_words:"true" validate:"gte=0"`
	// proof-of-authority chains need extra-data compatible header decoding
	POA bool `yaml:"poa" split_words:"true"`
}

type RelayConfig struct {
	Window         uint64        `yaml:"window" split_words:"true" validate:"gte=1"`
	ScanMode       string        `yaml:"scan_mode" split_words:"true" validate:"oneof=logs blocks"`
	ReceiptTimeout time.Duration `yaml:"receipt_timeout" split_words:"true"`
	ReceiptPoll    time.Duration `yaml:"receipt_poll" split_words:"true"`
	// both set means no estimation and no gas price query
	GasLimit uint64 `yaml:"gas_limit" split_words:"true"`
	GasPrice string `yaml:"gas_price" split_words:"true" validate:"omitempty,wei"` // wei, decimal
	// estimated gas is multiplied by GasLimitPercent/100, suggested price by GasPricePercent/100
	GasLimitPercent uint64 `yaml:"gas_limit_percent" split_words:"true" validate:"gte=100"`
	GasPricePercent uint64 `yaml:"gas_price_percent" split_words:"true" validate:"gte=100"`
}

// FixedGasPrice returns the configured gas price, nil when it must be queried.
func (r RelayConfig) FixedGasPrice() *big.Int {
	if r.GasPrice == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(r.GasPrice, 10)
	if !ok {
		return nil
	}
	return v
}

type StoreConfig struct {
	Driver    string `yaml:"driver" split_words:"true" validate:"oneof=redis bolt"`
	RedisHost string `yaml:"redis_host" split_words:"true"`
	RedisPort int    `yaml:"redis_port" split_words:"true"`
	BoltPath  string `yaml:"bolt_path" split_words:"true"`
}

const (
	DEFAULT_SCAN_WINDOW     = 5
	DEFAULT_RECEIPT_TIMEOUT = 180 * time.Second
	DEFAULT_RECEIPT_POLL    = 2 * time.Second
	DEFAULT_INTERVAL        = 30 * time.Second
)

// maximum number of EVM RPC retries on not-found blocks and receipts
const EVM_RETRIES = 3

func (c *Configuration) Chain(role string) *ChainConfig {
	switch role {
	case "source":
		return &c.Chains.Source
	case "destination":
		return &c.Chains.Destination
	}
	return nil
}

func (c *Configuration) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "console"
	}
	if c.Server.Interval == 0 {
		c.Server.Interval = DEFAULT_INTERVAL
	}
	if c.Chains.Source.Name == "" {
		c.Chains.Source.Name = "source"
	}
	if c.Chains.Destination.Name == "" {
		c.Chains.Destination.Name = "destination"
	}
	if c.Relay.Window == 0 {
		c.Relay.Window = DEFAULT_SCAN_WINDOW
	}
	if c.Relay.ScanMode == "" {
		c.Relay.ScanMode = "logs"
	}
	if c.Relay.ReceiptTimeout == 0 {
		c.Relay.ReceiptTimeout = DEFAULT_RECEIPT_TIMEOUT
	}
	if c.Relay.ReceiptPoll == 0 {
		c.Relay.ReceiptPoll = DEFAULT_RECEIPT_POLL
	}
	if c.Relay.GasLimitPercent == 0 {
		c.Relay.GasLimitPercent = 100
	}
	if c.Relay.GasPricePercent == 0 {
		c.Relay.GasPricePercent = 100
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "bolt"
	}
	if c.Store.RedisHost == "" {
		c.Store.RedisHost = "127.0.0.1"
	}
	if c.Store.RedisPort == 0 {
		c.Store.RedisPort = 6379
	}
	if c.Store.BoltPath == "" {
		c.Store.BoltPath = "warden.db"
	}
}
