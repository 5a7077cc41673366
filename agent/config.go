package agent

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Provider selects which model client path a Config wires.
type Provider string

const (
	// ProviderDirect talks to the vendor API directly (Anthropic Claude).
	ProviderDirect Provider = "direct"

	// ProviderTenant talks to a tenant-scoped managed deployment (AWS Bedrock).
	ProviderTenant Provider = "tenant"
)

// Config is the orchestrator's typed, validated configuration surface. It is
// loaded from environment variables and/or a YAML file and validated once at
// construction time: invalid configuration is always a construction-time
// error, never a run-time ModelCallError.
type Config struct {
	Provider Provider `yaml:"provider"`

	// Direct provider settings.
	APIKey  string `yaml:"api_key"`
	APIBase string `yaml:"api_base"`
	ModelID string `yaml:"model_id"`

	// Tenant provider settings.
	TenantEndpoint              string `yaml:"tenant_endpoint"`
	TenantDeploymentID          string `yaml:"tenant_deployment_id"`
	TenantEmbeddingDeploymentID string `yaml:"tenant_embedding_deployment_id"`
	TenantAPIVersion            string `yaml:"tenant_api_version"`

	MaxChallenges int `yaml:"max_challenges"`

	RateLimitTPM    float64 `yaml:"rate_limit_tpm"`
	RateLimitMaxTPM float64 `yaml:"rate_limit_max_tpm"`

	PlanCacheAddr string `yaml:"plan_cache_addr"`
	RunlogStore   string `yaml:"runlog_store"`

	OTelExporterEndpoint string `yaml:"otel_exporter_endpoint"`
	LogFormat            string `yaml:"log_format"`

	// SubtaskTemperature and AggregateTemperature pin the sampling temperature
	// used by the sub-task loop and the aggregator respectively, so a run is
	// reproducible for a fixed (model, prompt version, question) tuple. Not a
	// recognised environment key; defaultConfig sets 0.2 and 0.3, and an
	// explicit zero from the config file is used as is.
	SubtaskTemperature   float32 `yaml:"subtask_temperature"`
	AggregateTemperature float32 `yaml:"aggregate_temperature"`
}

const envPrefix = "AGENTCORE_"

// defaultConfig returns a Config with every default applied, before
// environment/file overrides.
func defaultConfig() Config {
	return Config{
		Provider:             ProviderDirect,
		MaxChallenges:        MaxChallenges,
		RateLimitTPM:         60000,
		RateLimitMaxTPM:      60000,
		LogFormat:            "json",
		SubtaskTemperature:   0.2,
		AggregateTemperature: 0.3,
	}
}

// LoadConfig builds a Config from defaults, an optional YAML file (path may
// be empty to skip it), and environment variables prefixed with
// "AGENTCORE_" (env always wins over the file). The result is validated
// before being returned.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("agent: reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("agent: parsing config file: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v, ok := lookupEnv("PROVIDER"); ok {
		c.Provider = Provider(v)
	}
	if v, ok := lookupEnv("API_KEY"); ok {
		c.APIKey = v
	}
	if v, ok := lookupEnv("API_BASE"); ok {
		c.APIBase = v
	}
	if v, ok := lookupEnv("MODEL_ID"); ok {
		c.ModelID = v
	}
	if v, ok := lookupEnv("TENANT_ENDPOINT"); ok {
		c.TenantEndpoint = v
	}
	if v, ok := lookupEnv("TENANT_DEPLOYMENT_ID"); ok {
		c.TenantDeploymentID = v
	}
	if v, ok := lookupEnv("TENANT_EMBEDDING_DEPLOYMENT_ID"); ok {
		c.TenantEmbeddingDeploymentID = v
	}
	if v, ok := lookupEnv("TENANT_API_VERSION"); ok {
		c.TenantAPIVersion = v
	}
	if v, ok := lookupEnvInt("MAX_CHALLENGES"); ok {
		c.MaxChallenges = v
	}
	if v, ok := lookupEnvFloat("RATE_LIMIT_TPM"); ok {
		c.RateLimitTPM = v
	}
	if v, ok := lookupEnvFloat("RATE_LIMIT_MAX_TPM"); ok {
		c.RateLimitMaxTPM = v
	}
	if v, ok := lookupEnv("PLAN_CACHE_ADDR"); ok {
		c.PlanCacheAddr = v
	}
	if v, ok := lookupEnv("RUNLOG_STORE"); ok {
		c.RunlogStore = v
	}
	if v, ok := lookupEnv("OTEL_EXPORTER_ENDPOINT"); ok {
		c.OTelExporterEndpoint = v
	}
	if v, ok := lookupEnv("LOG_FORMAT"); ok {
		c.LogFormat = v
	}
}

func lookupEnv(key string) (string, bool) {
	return os.LookupEnv(envPrefix + key)
}

func lookupEnvInt(key string) (int, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func lookupEnvFloat(key string) (float64, bool) {
	v, ok := lookupEnv(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Validate checks the configuration is internally consistent. It never
// touches the network: Validate is a pure, construction-time check so
// misconfiguration always surfaces before the orchestrator's first run,
// never as a ModelCallError.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderDirect:
		if c.APIKey == "" {
			return errors.New("agent: config: api_key is required for provider=direct")
		}
		if c.ModelID == "" {
			return errors.New("agent: config: model_id is required for provider=direct")
		}
	case ProviderTenant:
		if c.TenantEndpoint == "" {
			return errors.New("agent: config: tenant_endpoint is required for provider=tenant")
		}
		if c.TenantDeploymentID == "" {
			return errors.New("agent: config: tenant_deployment_id is required for provider=tenant")
		}
	default:
		return fmt.Errorf("agent: config: unknown provider %q", c.Provider)
	}
	if c.MaxChallenges <= 0 {
		return errors.New("agent: config: max_challenges must be > 0")
	}
	if c.RateLimitMaxTPM > 0 && c.RateLimitTPM > 0 && c.RateLimitMaxTPM < c.RateLimitTPM {
		return errors.New("agent: config: rate_limit_max_tpm must be >= rate_limit_tpm")
	}
	if c.LogFormat != "" && c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("agent: config: unknown log_format %q", c.LogFormat)
	}
	return nil
}

// modelID reports the identifier used to key the plan cache: the direct
// model identifier, or the tenant deployment identifier when running against
// the tenant provider.
func (c Config) modelID() string {
	if c.Provider == ProviderTenant {
		return c.TenantDeploymentID
	}
	return c.ModelID
}

func (c Config) subtaskTemperature() float32 {
	return c.SubtaskTemperature
}

func (c Config) aggregateTemperature() float32 {
	return c.AggregateTemperature
}

func (c Config) maxChallenges() int {
	if c.MaxChallenges <= 0 {
		return MaxChallenges
	}
	return c.MaxChallenges
}
