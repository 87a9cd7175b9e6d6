package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Robinhood  Robinhood  `mapstructure:"robinhood"`
	Trading    Trading    `mapstructure:"trading"`
	Risk       Risk       `mapstructure:"risk"`
	Strategies Strategies `mapstructure:"strategies"`
	Schedule   Schedule   `mapstructure:"schedule"`
	Logger     Logger     `mapstructure:"logger"`
	Server     Server     `mapstructure:"server"`
	Database   Database   `mapstructure:"database"`
}

// Robinhood holds credentials and client settings for the Robinhood API.
type Robinhood struct {
	Username       string  `mapstructure:"username"`
	Password       string  `mapstructure:"password"`
	MFASecret      string  `mapstructure:"mfa_secret"`
	DeviceToken    string  `mapstructure:"device_token"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Trading holds the configuration for the trading logic.
type Trading struct {
	Symbols            []string `mapstructure:"symbols"`
	MinConfidence      float64  `mapstructure:"min_confidence"`
	DefaultTradeAmount float64  `mapstructure:"default_trade_amount"`
	SymbolInterval     int      `mapstructure:"symbol_interval"` // seconds between symbols in a cycle
	LookbackDays       int      `mapstructure:"lookback_days"`
	AutoTrade          bool     `mapstructure:"auto_trade"`
}

// Risk holds the limits enforced by the risk gate.
type Risk struct {
	MaxPositionSize float64 `mapstructure:"max_position_size"`
	MaxDailyLoss    float64 `mapstructure:"max_daily_loss"`
	MaxPositions    int     `mapstructure:"max_positions"`
	RiskPercentage  float64 `mapstructure:"risk_percentage"`
}

// Strategies selects and tunes the signal strategies.
type Strategies struct {
	Active []string `mapstructure:"active"`
	SMA    SMA      `mapstructure:"sma"`
	RSI    RSI      `mapstructure:"rsi"`
}

// SMA holds the moving-average crossover parameters.
type SMA struct {
	ShortWindow int     `mapstructure:"short_window"`
	LongWindow  int     `mapstructure:"long_window"`
	Threshold   float64 `mapstructure:"threshold"`
}

// RSI holds the oscillator parameters.
type RSI struct {
	Period     int     `mapstructure:"period"`
	Oversold   float64 `mapstructure:"oversold"`
	Overbought float64 `mapstructure:"overbought"`
}

// Schedule holds the market-hours trigger times (HH:MM, weekdays only).
type Schedule struct {
	Times []string `mapstructure:"times"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("robinhood.rate_limit", 5) // requests per second
	viper.SetDefault("robinhood.rate_limit_burst", 2)
	viper.SetDefault("trading.symbols", []string{"AAPL", "GOOGL", "MSFT", "TSLA", "AMZN"})
	viper.SetDefault("trading.min_confidence", 0.6)
	viper.SetDefault("trading.default_trade_amount", 100.0)
	viper.SetDefault("trading.symbol_interval", 1)
	viper.SetDefault("trading.lookback_days", 365)
	viper.SetDefault("trading.auto_trade", false)
	viper.SetDefault("risk.max_position_size", 1000.0)
	viper.SetDefault("risk.max_daily_loss", 500.0)
	viper.SetDefault("risk.max_positions", 5)
	viper.SetDefault("risk.risk_percentage", 2.0)
	viper.SetDefault("strategies.active", []string{"sma", "rsi"})
	viper.SetDefault("strategies.sma.short_window", 50)
	viper.SetDefault("strategies.sma.long_window", 200)
	viper.SetDefault("strategies.sma.threshold", 0.01)
	viper.SetDefault("strategies.rsi.period", 14)
	viper.SetDefault("strategies.rsi.oversold", 30.0)
	viper.SetDefault("strategies.rsi.overbought", 70.0)
	viper.SetDefault("schedule.times", []string{"09:30", "15:30"})
	viper.SetDefault("server.port", 12000)
	viper.SetDefault("database.dsn", "./data/trading_bot.db")
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
