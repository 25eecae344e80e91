package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Rates      RatesConfig      `yaml:"rates"`
	Mpesa      MpesaConfig      `yaml:"mpesa"`
	Wallet     WalletConfig     `yaml:"wallet"`
	WorldID    WorldIDConfig    `yaml:"world_id"`
	Withdrawal WithdrawalConfig `yaml:"withdrawal"`
	JWT        JWTConfig        `yaml:"jwt"`
	TwoFactor  TwoFactorConfig  `yaml:"two_factor"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Logger     LoggerConfig     `yaml:"logger"`
}

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
}

type DatabaseConfig struct {
	Host            string `yaml:"host"`
	Port            string `yaml:"port"`
	User            string `yaml:"user"`
	DBName          string `yaml:"name"`
	Password        string `yaml:"password"`
	SSLMode         string `yaml:"ssl_mode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	// "memory" keeps all state in-process for desktop/dev runs.
	Driver string `yaml:"driver"`
}

type RatesConfig struct {
	CoinGeckoBaseURL string        `yaml:"coingecko_base_url"`
	ForexBaseURL     string        `yaml:"forex_base_url"`
	Timeout          int           `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoffBase int           `yaml:"retry_backoff_base"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
}

type MpesaConfig struct {
	BaseURL        string        `yaml:"base_url"`
	ConsumerKey    string        `yaml:"consumer_key"`
	ConsumerSecret string        `yaml:"consumer_secret"`
	ShortCode      string        `yaml:"short_code"`
	Passkey        string        `yaml:"passkey"`
	CallbackURL    string        `yaml:"callback_url"`
	Timeout        int           `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

type WalletConfig struct {
	// "live" bridges to the World App relay, "stub" is the labeled dev fallback.
	Mode             string        `yaml:"mode"`
	RelayBaseURL     string        `yaml:"relay_base_url"`
	AppID            string        `yaml:"app_id"`
	CustodialAddress string        `yaml:"custodial_address"`
	Timeout          time.Duration `yaml:"timeout"`
	StubSucceed      bool          `yaml:"stub_succeed"`
}

type WorldIDConfig struct {
	VerifyBaseURL string        `yaml:"verify_base_url"`
	AppID         string        `yaml:"app_id"`
	Action        string        `yaml:"action"`
	Timeout       time.Duration `yaml:"timeout"`
}

type WithdrawalConfig struct {
	FeeRate        string        `yaml:"fee_rate"`
	PendingTimeout time.Duration `yaml:"pending_timeout"`
}

type JWTConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

type TwoFactorConfig struct {
	Issuer          string `yaml:"issuer"`
	BackupCodeCount int    `yaml:"backup_code_count"`
}

type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	CheckOrigin     bool          `yaml:"check_origin"`
	PingPeriod      time.Duration `yaml:"ping_period"`
}

type LoggerConfig struct {
	Level      string `yaml:"level"`
	TimeFormat string `yaml:"time_format"`
	Pretty     bool   `yaml:"pretty"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	var config Config
	configData, err := os.ReadFile("./config.yaml")
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(configData, &config); err != nil {
		return nil, err
	}

	applyEnvOverrides(&config)

	return &config, nil
}

// Secrets never live in config.yaml; they come from the environment.
func applyEnvOverrides(config *Config) {
	overrides := map[string]*string{
		"MPESA_CONSUMER_KEY":    &config.Mpesa.ConsumerKey,
		"MPESA_CONSUMER_SECRET": &config.Mpesa.ConsumerSecret,
		"MPESA_SHORTCODE":       &config.Mpesa.ShortCode,
		"MPESA_PASSKEY":         &config.Mpesa.Passkey,
		"MPESA_CALLBACK_URL":    &config.Mpesa.CallbackURL,
		"JWT_SECRET":            &config.JWT.Secret,
		"WORLD_APP_ID":          &config.WorldID.AppID,
		"DB_PASSWORD":           &config.Database.Password,
	}

	for key, target := range overrides {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
}
