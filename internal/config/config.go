package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTargetURL   = "https://prices.nedostavka.net/bg/product"
	DefaultProductName = "Leffe Бира 0.33 Л"
	DefaultModel       = "gpt-4o"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Parser    ParserConfig    `yaml:"parser"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Cache     CacheConfig     `yaml:"cache"`
	Search    SearchConfig    `yaml:"search"`
	LLM       LLMConfig       `yaml:"llm"`
	Output    OutputConfig    `yaml:"output"`
}

type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	MaxBodySize  int64         `yaml:"max_body_size"`
}

// DatabaseConfig points at the run history database. An empty path
// disables history.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	TokenSecret string        `yaml:"token_secret"` // #nosec G117 -- configuration secret field.
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

type FetchConfig struct {
	URL       string        `yaml:"url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
	// AllowedHosts limits the hosts an unauthenticated API may fetch.
	// Empty means the host of URL only.
	AllowedHosts []string `yaml:"allowed_hosts"`
}

type ParserConfig struct {
	Identifiers   []string `yaml:"identifiers"`
	MinObjectSize int      `yaml:"min_object_size"`
}

type ArtifactsConfig struct {
	Method   string               `yaml:"method"`
	DebugKey string               `yaml:"debug_key"`
	Local    ArtifactsLocalConfig `yaml:"local"`
	S3       ArtifactsS3Config    `yaml:"s3"`
}

type ArtifactsLocalConfig struct {
	Directory string `yaml:"directory"`
}

type ArtifactsS3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"` // #nosec G117 -- configuration secret field.
	Prefix          string `yaml:"prefix"`
	PathStyle       bool   `yaml:"path_style"`
}

type CacheConfig struct {
	Provider  string           `yaml:"provider"`
	Disabled  bool             `yaml:"disabled"`
	Directory string           `yaml:"directory"`
	TTL       CacheTTLConfig   `yaml:"ttl"`
	Redis     CacheRedisConfig `yaml:"redis"`
}

type CacheTTLConfig struct {
	Page   time.Duration `yaml:"page"`
	Search time.Duration `yaml:"search"`
}

type CacheRedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"` // #nosec G117 -- configuration secret field.
	DB       int    `yaml:"db"`
	UseTLS   bool   `yaml:"tls"`
}

type SearchConfig struct {
	BaseURL    string `yaml:"base_url"`
	Site       string `yaml:"site"`
	Product    string `yaml:"product"`
	MaxResults int    `yaml:"max_results"`
}

type LLMConfig struct {
	APIKey  string        `yaml:"api_key"` // #nosec G117 -- configuration secret field.
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type OutputConfig struct {
	Path string `yaml:"path"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodySize:  10 * 1024 * 1024,
		},
		Database: DatabaseConfig{
			Path: "data/shelfscrape.db",
		},
		Auth: AuthConfig{
			TokenTTL: 30 * 24 * time.Hour,
		},
		Fetch: FetchConfig{
			URL:     DefaultTargetURL,
			Timeout: 30 * time.Second,
		},
		Parser: ParserConfig{
			Identifiers:   []string{"__NUXT__", "__INITIAL_STATE__"},
			MinObjectSize: 100,
		},
		Artifacts: ArtifactsConfig{
			Method:   "local",
			DebugKey: "debug_extracted_data.txt",
			Local: ArtifactsLocalConfig{
				Directory: ".",
			},
		},
		Cache: CacheConfig{
			Provider:  "sqlite",
			Directory: "data",
			TTL: CacheTTLConfig{
				Page:   15 * time.Minute,
				Search: 6 * time.Hour,
			},
		},
		Search: SearchConfig{
			BaseURL:    "https://lite.duckduckgo.com/lite/",
			Site:       DefaultTargetURL,
			Product:    DefaultProductName,
			MaxResults: 10,
		},
		LLM: LLMConfig{
			Model:   DefaultModel,
			Timeout: 60 * time.Second,
		},
		Output: OutputConfig{
			Path: "product_data.json",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	root, err := os.OpenRoot(filepath.Dir(path))
	if err == nil {
		defer root.Close()
		if _, err := root.Stat(filepath.Base(path)); err == nil {
			file, err := root.Open(filepath.Base(path))
			if err != nil {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
			defer file.Close()
			data, err := io.ReadAll(file)
			if err != nil {
				return nil, fmt.Errorf("reading config file: %w", err)
			}

			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("applying env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

type Overrides struct {
	ServerAddress  *string
	DatabasePath   *string
	FetchURL       *string
	ArtifactsDir   *string
	ArtifactMethod *string
	CacheProvider  *string
	CacheDisabled  *bool
	CacheRedisURL  *string
	SearchProduct  *string
	SearchSite     *string
	LLMModel       *string
	OutputPath     *string
	MinObjectSize  *int
}

func (c *Config) ApplyOverrides(overrides Overrides) error {
	if overrides.ServerAddress != nil {
		c.Server.Address = *overrides.ServerAddress
	}
	if overrides.DatabasePath != nil {
		c.Database.Path = *overrides.DatabasePath
	}
	if overrides.FetchURL != nil {
		c.Fetch.URL = *overrides.FetchURL
	}
	if overrides.ArtifactsDir != nil {
		c.Artifacts.Local.Directory = *overrides.ArtifactsDir
	}
	if overrides.ArtifactMethod != nil {
		c.Artifacts.Method = *overrides.ArtifactMethod
	}
	if overrides.CacheProvider != nil {
		c.Cache.Provider = *overrides.CacheProvider
	}
	if overrides.CacheDisabled != nil {
		c.Cache.Disabled = *overrides.CacheDisabled
	}
	if overrides.CacheRedisURL != nil {
		c.Cache.Redis.URL = *overrides.CacheRedisURL
		if err := applyRedisURL(&c.Cache.Redis); err != nil {
			return err
		}
	}
	if overrides.SearchProduct != nil {
		c.Search.Product = *overrides.SearchProduct
	}
	if overrides.SearchSite != nil {
		c.Search.Site = *overrides.SearchSite
	}
	if overrides.LLMModel != nil {
		c.LLM.Model = *overrides.LLMModel
	}
	if overrides.OutputPath != nil {
		c.Output.Path = *overrides.OutputPath
	}
	if overrides.MinObjectSize != nil {
		c.Parser.MinObjectSize = *overrides.MinObjectSize
	}

	return c.validate()
}

func (c *Config) applyEnv() error {
	addressSet := false
	if value, ok := lookupEnv("SHELFSCRAPE_SERVER_ADDRESS"); ok {
		c.Server.Address = value
		addressSet = true
	}
	if value, ok := lookupEnv("PORT"); ok && !addressSet {
		c.Server.Address = ":" + value
	}
	if err := envDuration("SHELFSCRAPE_SERVER_READ_TIMEOUT", &c.Server.ReadTimeout); err != nil {
		return err
	}
	if err := envDuration("SHELFSCRAPE_SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeout); err != nil {
		return err
	}
	if value, ok := os.LookupEnv("SHELFSCRAPE_DATABASE_PATH"); ok {
		c.Database.Path = strings.TrimSpace(value)
	}
	if value, ok := lookupEnv("SHELFSCRAPE_AUTH_TOKEN_SECRET"); ok {
		c.Auth.TokenSecret = value
	}
	if err := envDuration("SHELFSCRAPE_AUTH_TOKEN_TTL", &c.Auth.TokenTTL); err != nil {
		return err
	}
	if value, ok := lookupEnv("SHELFSCRAPE_FETCH_URL"); ok {
		c.Fetch.URL = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_FETCH_USER_AGENT"); ok {
		c.Fetch.UserAgent = value
	}
	if err := envDuration("SHELFSCRAPE_FETCH_TIMEOUT", &c.Fetch.Timeout); err != nil {
		return err
	}
	if value, ok := lookupEnv("SHELFSCRAPE_FETCH_ALLOWED_HOSTS"); ok {
		c.Fetch.AllowedHosts = splitList(value)
	}
	if value, ok := lookupEnv("SHELFSCRAPE_PARSER_IDENTIFIERS"); ok {
		c.Parser.Identifiers = splitList(value)
	}
	if value, ok := lookupEnv("SHELFSCRAPE_PARSER_MIN_OBJECT_SIZE"); ok {
		parsed, err := parseInt(value)
		if err != nil {
			return fmt.Errorf("SHELFSCRAPE_PARSER_MIN_OBJECT_SIZE: %w", err)
		}
		c.Parser.MinObjectSize = parsed
	}
	if value, ok := lookupEnv("SHELFSCRAPE_ARTIFACTS_METHOD"); ok {
		c.Artifacts.Method = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_ARTIFACTS_DEBUG_KEY"); ok {
		c.Artifacts.DebugKey = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_ARTIFACTS_LOCAL_DIRECTORY"); ok {
		c.Artifacts.Local.Directory = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_ARTIFACTS_S3_BUCKET"); ok {
		c.Artifacts.S3.Bucket = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_ARTIFACTS_S3_REGION"); ok {
		c.Artifacts.S3.Region = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_ARTIFACTS_S3_ENDPOINT"); ok {
		c.Artifacts.S3.Endpoint = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_ARTIFACTS_S3_ACCESS_KEY_ID"); ok {
		c.Artifacts.S3.AccessKeyID = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_ARTIFACTS_S3_SECRET_ACCESS_KEY"); ok {
		c.Artifacts.S3.SecretAccessKey = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_ARTIFACTS_S3_SESSION_TOKEN"); ok {
		c.Artifacts.S3.SessionToken = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_ARTIFACTS_S3_PREFIX"); ok {
		c.Artifacts.S3.Prefix = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_ARTIFACTS_S3_PATH_STYLE"); ok {
		parsed, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("SHELFSCRAPE_ARTIFACTS_S3_PATH_STYLE: %w", err)
		}
		c.Artifacts.S3.PathStyle = parsed
	}
	if value, ok := lookupEnv("SHELFSCRAPE_CACHE_PROVIDER"); ok {
		c.Cache.Provider = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_CACHE_DISABLED"); ok {
		parsed, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("SHELFSCRAPE_CACHE_DISABLED: %w", err)
		}
		c.Cache.Disabled = parsed
	}
	if value, ok := lookupEnv("SHELFSCRAPE_CACHE_DIRECTORY"); ok {
		c.Cache.Directory = value
	}
	if err := envDuration("SHELFSCRAPE_CACHE_TTL_PAGE", &c.Cache.TTL.Page); err != nil {
		return err
	}
	if err := envDuration("SHELFSCRAPE_CACHE_TTL_SEARCH", &c.Cache.TTL.Search); err != nil {
		return err
	}
	if value, ok := lookupEnv("SHELFSCRAPE_CACHE_REDIS_URL"); ok {
		c.Cache.Redis.URL = value
	} else if value, ok := lookupEnv("REDIS_URL"); ok {
		c.Cache.Redis.URL = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_CACHE_REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_CACHE_REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_CACHE_REDIS_DB"); ok {
		parsed, err := parseInt(value)
		if err != nil {
			return fmt.Errorf("SHELFSCRAPE_CACHE_REDIS_DB: %w", err)
		}
		c.Cache.Redis.DB = parsed
	}
	if value, ok := lookupEnv("SHELFSCRAPE_SEARCH_BASE_URL"); ok {
		c.Search.BaseURL = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_SEARCH_SITE"); ok {
		c.Search.Site = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_SEARCH_PRODUCT"); ok {
		c.Search.Product = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_SEARCH_MAX_RESULTS"); ok {
		parsed, err := parseInt(value)
		if err != nil {
			return fmt.Errorf("SHELFSCRAPE_SEARCH_MAX_RESULTS: %w", err)
		}
		c.Search.MaxResults = parsed
	}
	if value, ok := lookupEnv("SHELFSCRAPE_LLM_API_KEY"); ok {
		c.LLM.APIKey = value
	} else if value, ok := lookupEnv("OPENAI_API_KEY"); ok {
		c.LLM.APIKey = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_LLM_BASE_URL"); ok {
		c.LLM.BaseURL = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_LLM_MODEL"); ok {
		c.LLM.Model = value
	}
	if value, ok := lookupEnv("SHELFSCRAPE_OUTPUT_PATH"); ok {
		c.Output.Path = value
	}
	if strings.TrimSpace(c.Cache.Redis.URL) != "" {
		if err := applyRedisURL(&c.Cache.Redis); err != nil {
			return err
		}
	}

	return nil
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

func envDuration(key string, target *time.Duration) error {
	value, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*target = duration
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(value string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(value))
}

func parseBool(value string) (bool, error) {
	return strconv.ParseBool(strings.TrimSpace(value))
}

func applyRedisURL(cfg *CacheRedisConfig) error {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("cache redis url: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("cache redis url: missing host")
	}
	if parsed.User != nil {
		if password, ok := parsed.User.Password(); ok {
			cfg.Password = password
		}
	}
	if path := strings.Trim(parsed.Path, "/"); path != "" {
		dbIndex, err := strconv.Atoi(path)
		if err != nil {
			return fmt.Errorf("cache redis url: invalid db index")
		}
		cfg.DB = dbIndex
	}
	if value := strings.TrimSpace(parsed.Query().Get("tls")); value != "" {
		useTLS, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cache redis url: invalid tls query param")
		}
		cfg.UseTLS = useTLS
	}
	if strings.EqualFold(parsed.Scheme, "rediss") {
		cfg.UseTLS = true
	}
	if cfg.Addr == "" {
		cfg.Addr = parsed.Host
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server address is required")
	}

	if c.Fetch.URL != "" {
		if err := validateHTTPURL(c.Fetch.URL); err != nil {
			return fmt.Errorf("fetch url: %w", err)
		}
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}

	if len(c.Parser.Identifiers) == 0 {
		return fmt.Errorf("parser identifiers must not be empty")
	}
	for _, ident := range c.Parser.Identifiers {
		if !isIdentifier(ident) {
			return fmt.Errorf("parser identifier %q is not a valid JavaScript identifier", ident)
		}
	}
	if c.Parser.MinObjectSize <= 0 {
		return fmt.Errorf("parser min object size must be positive")
	}

	method := strings.ToLower(strings.TrimSpace(c.Artifacts.Method))
	if method == "" {
		method = "local"
	}
	c.Artifacts.Method = method
	switch method {
	case "local":
		if c.Artifacts.Local.Directory == "" {
			return fmt.Errorf("artifacts local directory is required")
		}
	case "s3":
		if strings.TrimSpace(c.Artifacts.S3.Bucket) == "" {
			return fmt.Errorf("artifacts s3 bucket is required")
		}
		if strings.TrimSpace(c.Artifacts.S3.Region) == "" {
			return fmt.Errorf("artifacts s3 region is required")
		}
	default:
		return fmt.Errorf("artifacts method must be local or s3")
	}
	if strings.TrimSpace(c.Artifacts.DebugKey) == "" {
		return fmt.Errorf("artifacts debug key is required")
	}

	cacheProvider := strings.ToLower(strings.TrimSpace(c.Cache.Provider))
	if cacheProvider == "" {
		cacheProvider = "sqlite"
	}
	c.Cache.Provider = cacheProvider
	if cacheProvider != "sqlite" && cacheProvider != "redis" {
		return fmt.Errorf("cache provider must be sqlite or redis")
	}
	if cacheProvider == "redis" && !c.Cache.Disabled && strings.TrimSpace(c.Cache.Redis.Addr) == "" {
		return fmt.Errorf("cache redis addr is required")
	}
	if c.Cache.TTL.Page <= 0 {
		c.Cache.TTL.Page = 15 * time.Minute
	}
	if c.Cache.TTL.Search <= 0 {
		c.Cache.TTL.Search = 6 * time.Hour
	}

	if err := validateHTTPURL(c.Search.BaseURL); err != nil {
		return fmt.Errorf("search base url: %w", err)
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 10
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		c.LLM.Model = DefaultModel
	}
	if strings.TrimSpace(c.Output.Path) == "" {
		return fmt.Errorf("output path is required")
	}

	return nil
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("%q must be a valid url", raw)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%q must use http or https", raw)
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
