// Package config loads service configuration from an optional YAML file and
// UNIGRC_-prefixed environment variables. Scoring weights and SLA thresholds
// are configuration, not constants: deployments tune the prioritization
// policy without a rebuild.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	SLA       SLAConfig       `mapstructure:"sla"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	Database    string        `mapstructure:"database"`
	SSLMode     string        `mapstructure:"ssl_mode"`
	MaxConns    int32         `mapstructure:"max_conns"`
	MinConns    int32         `mapstructure:"min_conns"`
	MaxConnLife time.Duration `mapstructure:"max_conn_lifetime"`
	MaxIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// DSN builds the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// ScoringConfig carries the prioritization policy. The defaults reconstruct
// the 40/20/15/15/5/5 weighting with risk thresholds at 80/60/40.
type ScoringConfig struct {
	Weights        ScoringWeights `mapstructure:"weights"`
	RiskThresholds RiskThresholds `mapstructure:"risk_thresholds"`
}

type ScoringWeights struct {
	RiskScoreFactor       float64 `mapstructure:"risk_score_factor"`       // points per riskScore point
	StrategicPriorityMax  float64 `mapstructure:"strategic_priority_max"`  // points at strategicPriority=3
	PreviousResultBad     float64 `mapstructure:"previous_result_bad"`
	PreviousResultRegular float64 `mapstructure:"previous_result_regular"`
	PreviousResultGood    float64 `mapstructure:"previous_result_good"`
	FraudHistory          float64 `mapstructure:"fraud_history"`
	RegulatoryRequirement float64 `mapstructure:"regulatory_requirement"`
	ManagementRequest     float64 `mapstructure:"management_request"`
}

type RiskThresholds struct {
	Critical int `mapstructure:"critical"`
	High     int `mapstructure:"high"`
	Medium   int `mapstructure:"medium"`
}

// SLAConfig holds the per-risk-level age thresholds after which a pending
// approval item is escalated automatically.
type SLAConfig struct {
	Critical time.Duration `mapstructure:"critical"`
	High     time.Duration `mapstructure:"high"`
	Medium   time.Duration `mapstructure:"medium"`
	Low      time.Duration `mapstructure:"low"`
}

type WorkerConfig struct {
	EscalationInterval time.Duration `mapstructure:"escalation_interval"`
}

type DashboardConfig struct {
	TrendDays int `mapstructure:"trend_days"`
}

// Load reads configuration from cfgFile (optional) and the environment.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("UNIGRC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "unigrc-approvals")
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.version", "dev")

	v.SetDefault("server.port", 8086)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "unigrc")
	v.SetDefault("database.password", "unigrc")
	v.SetDefault("database.database", "unigrc")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)

	v.SetDefault("scoring.weights.risk_score_factor", 0.4)
	v.SetDefault("scoring.weights.strategic_priority_max", 20)
	v.SetDefault("scoring.weights.previous_result_bad", 15)
	v.SetDefault("scoring.weights.previous_result_regular", 8)
	v.SetDefault("scoring.weights.previous_result_good", 2)
	v.SetDefault("scoring.weights.fraud_history", 15)
	v.SetDefault("scoring.weights.regulatory_requirement", 5)
	v.SetDefault("scoring.weights.management_request", 5)
	v.SetDefault("scoring.risk_thresholds.critical", 80)
	v.SetDefault("scoring.risk_thresholds.high", 60)
	v.SetDefault("scoring.risk_thresholds.medium", 40)

	v.SetDefault("sla.critical", 4*time.Hour)
	v.SetDefault("sla.high", 24*time.Hour)
	v.SetDefault("sla.medium", 72*time.Hour)
	v.SetDefault("sla.low", 168*time.Hour)

	v.SetDefault("worker.escalation_interval", 5*time.Minute)

	v.SetDefault("dashboard.trend_days", 30)
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Scoring.RiskThresholds.Critical <= c.Scoring.RiskThresholds.High ||
		c.Scoring.RiskThresholds.High <= c.Scoring.RiskThresholds.Medium {
		return fmt.Errorf("scoring.risk_thresholds must be strictly decreasing (critical > high > medium)")
	}
	for name, d := range map[string]time.Duration{
		"sla.critical": c.SLA.Critical,
		"sla.high":     c.SLA.High,
		"sla.medium":   c.SLA.Medium,
		"sla.low":      c.SLA.Low,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Worker.EscalationInterval <= 0 {
		return fmt.Errorf("worker.escalation_interval must be positive")
	}
	if c.Dashboard.TrendDays < 1 {
		return fmt.Errorf("dashboard.trend_days must be at least 1")
	}
	return nil
}
