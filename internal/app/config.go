package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docsense/docsense-backend/internal/pkg/logger"
	"github.com/docsense/docsense-backend/internal/utils"
)

// Config carries all process-wide tunables. Resolution order: hard defaults,
// then the optional YAML file named by DOCSENSE_CONFIG, then environment
// variables on top.
type Config struct {
	LogMode     string
	HTTPAddr    string
	MetricsAddr string
	Environment string
	Version     string

	JWTSecret string

	Embedding struct {
		Batch int
	}

	Retrieval struct {
		K       int
		Cap     int
		Timeout time.Duration
	}

	Alias struct {
		ExpansionCap  int
		MinConfidence float64
		DecayFactor   float64
		DecayIdle     time.Duration
	}

	LLM struct {
		IntentModel   string
		MainModel     string
		MainMaxTokens int
	}

	Conversation struct {
		TruncateChars int
		KeepExchanges int
		IdleTimeout   time.Duration
	}

	Timeouts struct {
		Intent   time.Duration
		Reviewer time.Duration
		Total    time.Duration
	}

	Dedup struct {
		Window time.Duration
	}

	RateLimit struct {
		TokensPerMin int
	}
}

// fileConfig mirrors Config with optional fields for the YAML overlay.
type fileConfig struct {
	LogMode     *string `yaml:"log_mode"`
	HTTPAddr    *string `yaml:"http_addr"`
	MetricsAddr *string `yaml:"metrics_addr"`
	Environment *string `yaml:"environment"`

	JWTSecret *string `yaml:"jwt_secret"`

	Embedding struct {
		Batch *int `yaml:"batch"`
	} `yaml:"embedding"`

	Retrieval struct {
		K              *int `yaml:"k"`
		Cap            *int `yaml:"cap"`
		TimeoutSeconds *int `yaml:"timeout_s"`
	} `yaml:"retrieval"`

	Alias struct {
		ExpansionCap      *int     `yaml:"expansion_cap"`
		MinConfidence     *float64 `yaml:"min_confidence"`
		DecayFactor       *float64 `yaml:"decay_factor"`
		DecayIntervalDays *int     `yaml:"decay_interval_days"`
	} `yaml:"alias"`

	LLM struct {
		IntentModel   *string `yaml:"intent_model"`
		MainModel     *string `yaml:"main_model"`
		MainMaxTokens *int    `yaml:"main_max_tokens"`
	} `yaml:"llm"`

	Conversation struct {
		TruncateChars    *int `yaml:"truncate_chars"`
		KeepExchanges    *int `yaml:"keep_exchanges"`
		IdleTimeoutHours *int `yaml:"idle_timeout_hours"`
	} `yaml:"conversation"`

	Timeouts struct {
		IntentSeconds   *int `yaml:"intent_s"`
		ReviewerSeconds *int `yaml:"reviewer_s"`
		TotalSeconds    *int `yaml:"total_s"`
	} `yaml:"timeouts"`

	Dedup struct {
		WindowSeconds *int `yaml:"window_s"`
	} `yaml:"dedup"`

	RateLimit struct {
		TokensPerMin *int `yaml:"tokens_per_min"`
	} `yaml:"ratelimit"`
}

func LoadConfig(log *logger.Logger) (Config, error) {
	var cfg Config

	cfg.LogMode = "development"
	cfg.HTTPAddr = ":8080"
	cfg.MetricsAddr = ""
	cfg.Environment = "development"
	cfg.Version = "dev"
	cfg.JWTSecret = "defaultsecret"
	cfg.Embedding.Batch = 32
	cfg.Retrieval.K = 25
	cfg.Retrieval.Cap = 10
	cfg.Retrieval.Timeout = 10 * time.Second
	cfg.Alias.ExpansionCap = 5
	cfg.Alias.MinConfidence = 0.30
	cfg.Alias.DecayFactor = 0.97
	cfg.Alias.DecayIdle = 7 * 24 * time.Hour
	cfg.LLM.IntentModel = "intent-small"
	cfg.LLM.MainModel = "main-large"
	cfg.LLM.MainMaxTokens = 1500
	cfg.Conversation.TruncateChars = 3000
	cfg.Conversation.KeepExchanges = 4
	cfg.Conversation.IdleTimeout = 24 * time.Hour
	cfg.Timeouts.Intent = 5 * time.Second
	cfg.Timeouts.Reviewer = 5 * time.Second
	cfg.Timeouts.Total = 120 * time.Second
	cfg.Dedup.Window = 2 * time.Second
	cfg.RateLimit.TokensPerMin = 90000

	if err := applyConfigFile(log, &cfg); err != nil {
		return Config{}, err
	}
	applyEnv(log, &cfg)
	return cfg, nil
}

func applyConfigFile(log *logger.Logger, cfg *Config) error {
	path := strings.TrimSpace(os.Getenv("DOCSENSE_CONFIG"))
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	log.Info("Applying config file overlay", "path", path)

	setString(&cfg.LogMode, fc.LogMode)
	setString(&cfg.HTTPAddr, fc.HTTPAddr)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)
	setString(&cfg.Environment, fc.Environment)
	setString(&cfg.JWTSecret, fc.JWTSecret)
	setInt(&cfg.Embedding.Batch, fc.Embedding.Batch)
	setInt(&cfg.Retrieval.K, fc.Retrieval.K)
	setInt(&cfg.Retrieval.Cap, fc.Retrieval.Cap)
	setSeconds(&cfg.Retrieval.Timeout, fc.Retrieval.TimeoutSeconds)
	setInt(&cfg.Alias.ExpansionCap, fc.Alias.ExpansionCap)
	setFloat(&cfg.Alias.MinConfidence, fc.Alias.MinConfidence)
	setFloat(&cfg.Alias.DecayFactor, fc.Alias.DecayFactor)
	if fc.Alias.DecayIntervalDays != nil && *fc.Alias.DecayIntervalDays > 0 {
		cfg.Alias.DecayIdle = time.Duration(*fc.Alias.DecayIntervalDays) * 24 * time.Hour
	}
	setString(&cfg.LLM.IntentModel, fc.LLM.IntentModel)
	setString(&cfg.LLM.MainModel, fc.LLM.MainModel)
	setInt(&cfg.LLM.MainMaxTokens, fc.LLM.MainMaxTokens)
	setInt(&cfg.Conversation.TruncateChars, fc.Conversation.TruncateChars)
	setInt(&cfg.Conversation.KeepExchanges, fc.Conversation.KeepExchanges)
	if fc.Conversation.IdleTimeoutHours != nil && *fc.Conversation.IdleTimeoutHours > 0 {
		cfg.Conversation.IdleTimeout = time.Duration(*fc.Conversation.IdleTimeoutHours) * time.Hour
	}
	setSeconds(&cfg.Timeouts.Intent, fc.Timeouts.IntentSeconds)
	setSeconds(&cfg.Timeouts.Reviewer, fc.Timeouts.ReviewerSeconds)
	setSeconds(&cfg.Timeouts.Total, fc.Timeouts.TotalSeconds)
	setSeconds(&cfg.Dedup.Window, fc.Dedup.WindowSeconds)
	setInt(&cfg.RateLimit.TokensPerMin, fc.RateLimit.TokensPerMin)
	return nil
}

func applyEnv(log *logger.Logger, cfg *Config) {
	cfg.LogMode = utils.GetEnv("LOG_MODE", cfg.LogMode, log)
	cfg.HTTPAddr = utils.GetEnv("HTTP_ADDR", cfg.HTTPAddr, log)
	cfg.MetricsAddr = utils.GetEnv("METRICS_ADDR", cfg.MetricsAddr, log)
	cfg.Environment = utils.GetEnv("ENVIRONMENT", cfg.Environment, log)
	cfg.Version = utils.GetEnv("SERVICE_VERSION", cfg.Version, log)
	cfg.JWTSecret = utils.GetEnv("JWT_SECRET_KEY", cfg.JWTSecret, log)

	cfg.Embedding.Batch = utils.GetEnvAsInt("EMBEDDING_BATCH", cfg.Embedding.Batch, log)
	cfg.Retrieval.K = utils.GetEnvAsInt("RETRIEVAL_K", cfg.Retrieval.K, log)
	cfg.Retrieval.Cap = utils.GetEnvAsInt("RETRIEVAL_CAP", cfg.Retrieval.Cap, log)
	cfg.Retrieval.Timeout = envSeconds("RETRIEVAL_TIMEOUT_S", cfg.Retrieval.Timeout, log)

	cfg.Alias.ExpansionCap = utils.GetEnvAsInt("ALIAS_EXPANSION_CAP", cfg.Alias.ExpansionCap, log)
	cfg.Alias.MinConfidence = utils.GetEnvAsFloat("ALIAS_MIN_CONFIDENCE", cfg.Alias.MinConfidence, log)
	cfg.Alias.DecayFactor = utils.GetEnvAsFloat("ALIAS_DECAY_FACTOR", cfg.Alias.DecayFactor, log)
	if days := utils.GetEnvAsInt("ALIAS_DECAY_INTERVAL_DAYS", 0, log); days > 0 {
		cfg.Alias.DecayIdle = time.Duration(days) * 24 * time.Hour
	}

	cfg.LLM.IntentModel = utils.GetEnv("LLM_INTENT_MODEL", cfg.LLM.IntentModel, log)
	cfg.LLM.MainModel = utils.GetEnv("LLM_MAIN_MODEL", cfg.LLM.MainModel, log)
	cfg.LLM.MainMaxTokens = utils.GetEnvAsInt("LLM_MAIN_MAX_TOKENS", cfg.LLM.MainMaxTokens, log)

	cfg.Conversation.TruncateChars = utils.GetEnvAsInt("CONVERSATION_TRUNCATE_CHARS", cfg.Conversation.TruncateChars, log)
	cfg.Conversation.KeepExchanges = utils.GetEnvAsInt("CONVERSATION_KEEP_EXCHANGES", cfg.Conversation.KeepExchanges, log)
	if hours := utils.GetEnvAsInt("CONVERSATION_IDLE_TIMEOUT_HOURS", 0, log); hours > 0 {
		cfg.Conversation.IdleTimeout = time.Duration(hours) * time.Hour
	}

	cfg.Timeouts.Intent = envSeconds("TIMEOUT_INTENT_S", cfg.Timeouts.Intent, log)
	cfg.Timeouts.Reviewer = envSeconds("TIMEOUT_REVIEWER_S", cfg.Timeouts.Reviewer, log)
	cfg.Timeouts.Total = envSeconds("TIMEOUT_TOTAL_S", cfg.Timeouts.Total, log)
	cfg.Dedup.Window = envSeconds("DEDUP_WINDOW_S", cfg.Dedup.Window, log)
	cfg.RateLimit.TokensPerMin = utils.GetEnvAsInt("RATELIMIT_TOKENS_PER_MIN", cfg.RateLimit.TokensPerMin, log)
}

func envSeconds(key string, current time.Duration, log *logger.Logger) time.Duration {
	s := utils.GetEnvAsInt(key, 0, log)
	if s <= 0 {
		return current
	}
	return time.Duration(s) * time.Second
}

func setString(dst *string, src *string) {
	if src != nil && strings.TrimSpace(*src) != "" {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil && *src > 0 {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil && *src > 0 {
		*dst = *src
	}
}

func setSeconds(dst *time.Duration, src *int) {
	if src != nil && *src > 0 {
		*dst = time.Duration(*src) * time.Second
	}
}
