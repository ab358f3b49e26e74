package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Store modes
const (
	ModeEmbedding = "embedding" // reference entries hold a face embedding
	ModeImage     = "image"     // reference entries hold the image path
)

// Matching strategies
const (
	StrategyDistance = "distance"
	StrategyVerify   = "verify"
)

// Distance metrics
const (
	MetricEuclidean = "euclidean"
	MetricCosine    = "cosine"
)

// Candidate search
const (
	IndexScan = "scan"
	IndexHNSW = "hnsw"
)

// Dedupe policies
const (
	DedupeSession = "session"
	DedupeLedger  = "ledger"
)

// Face capability backends
const (
	EmbeddingHTTP = "http"
	EmbeddingDlib = "dlib"
)

// Ledger backends
const (
	BackendCSV      = "csv"
	BackendPostgres = "postgres"
	BackendMariaDB  = "mariadb"
)

// Config is the complete application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Match     MatchConfig     `yaml:"match"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Database  DatabaseConfig  `yaml:"database"`
	MariaDB   MariaDBConfig   `yaml:"mariadb"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Web       WebConfig       `yaml:"web"`
	Log       LogConfig       `yaml:"log"`
}

// StoreConfig locates the reference faces and controls reloading.
type StoreConfig struct {
	Dir            string        `yaml:"dir"`
	Mode           string        `yaml:"mode"`            // embedding or image
	Watch          bool          `yaml:"watch"`           // reload on directory changes
	ReloadInterval time.Duration `yaml:"reload_interval"` // periodic reload, 0 disables
}

// MatchConfig selects the matching strategy and its thresholds.
type MatchConfig struct {
	Strategy      string        `yaml:"strategy"`
	Metric        string        `yaml:"metric"`
	Threshold     float64       `yaml:"threshold"`      // distance must be strictly below
	HashThreshold int           `yaml:"hash_threshold"` // Hamming bits, strictly below
	Timeout       time.Duration `yaml:"timeout"`        // per comparison call
	Index         string        `yaml:"index"`
}

// LedgerConfig selects the attendance ledger and its dedupe policy.
type LedgerConfig struct {
	Backend      string `yaml:"backend"`
	Path         string `yaml:"path"` // CSV ledger file
	Dedupe       string `yaml:"dedupe"`
	SameDay      bool   `yaml:"same_day"` // ledger policy only looks at today's rows
	WriteRetries int    `yaml:"write_retries"`
}

// EmbeddingConfig selects the face comparison backend.
type EmbeddingConfig struct {
	Backend  string `yaml:"backend"`   // http or dlib
	URL      string `yaml:"url"`       // face service, defaults to http://localhost:8000
	ModelDir string `yaml:"model_dir"` // dlib models for the local backend
}

// DatabaseConfig holds PostgreSQL settings for the ledger and the reference cache.
type DatabaseConfig struct {
	URL             string `yaml:"url"` // PostgreSQL connection URL
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	HNSWIndexPath   string `yaml:"hnsw_index_path"`  // optional, index is rebuilt on reload when empty
	CacheEmbeddings bool   `yaml:"cache_embeddings"` // keep reference embeddings in PostgreSQL
}

// MariaDBConfig holds the MariaDB ledger connection.
type MariaDBConfig struct {
	DSN string `yaml:"dsn"` // e.g. attendance:attendance@tcp(mariadb:3306)/attendance?parseTime=true
}

// KafkaConfig enables attendance event publishing when brokers are set.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// WebConfig holds HTTP server settings.
type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS whitelist, "*" allows any, localhost always allowed
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Load builds the configuration from the embedded defaults, the optional file
// named by FACE_ATTENDANCE_CONFIG and the environment, in that order.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		// Embedded file, this can only fail on a broken build.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	if path := os.Getenv("FACE_ATTENDANCE_CONFIG"); path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv() error {
	var errs []error

	envString("STORE_DIR", &c.Store.Dir)
	envString("STORE_MODE", &c.Store.Mode)
	errs = append(errs, envBool("STORE_WATCH", &c.Store.Watch))
	errs = append(errs, envDuration("STORE_RELOAD_INTERVAL", &c.Store.ReloadInterval))

	envString("MATCH_STRATEGY", &c.Match.Strategy)
	envString("MATCH_METRIC", &c.Match.Metric)
	errs = append(errs, envFloat("MATCH_THRESHOLD", &c.Match.Threshold))
	errs = append(errs, envInt("MATCH_HASH_THRESHOLD", &c.Match.HashThreshold))
	errs = append(errs, envDuration("MATCH_TIMEOUT", &c.Match.Timeout))
	envString("MATCH_INDEX", &c.Match.Index)

	envString("LEDGER_BACKEND", &c.Ledger.Backend)
	envString("LEDGER_PATH", &c.Ledger.Path)
	envString("LEDGER_DEDUPE", &c.Ledger.Dedupe)
	errs = append(errs, envBool("LEDGER_SAME_DAY", &c.Ledger.SameDay))
	errs = append(errs, envInt("LEDGER_WRITE_RETRIES", &c.Ledger.WriteRetries))

	envString("EMBEDDING_BACKEND", &c.Embedding.Backend)
	envString("EMBEDDING_URL", &c.Embedding.URL)
	envString("EMBEDDING_MODEL_DIR", &c.Embedding.ModelDir)

	envString("DATABASE_URL", &c.Database.URL)
	errs = append(errs, envInt("DATABASE_MAX_OPEN_CONNS", &c.Database.MaxOpenConns))
	errs = append(errs, envInt("DATABASE_MAX_IDLE_CONNS", &c.Database.MaxIdleConns))
	envString("HNSW_INDEX_PATH", &c.Database.HNSWIndexPath)
	errs = append(errs, envBool("DATABASE_CACHE_EMBEDDINGS", &c.Database.CacheEmbeddings))

	envString("MARIADB_DSN", &c.MariaDB.DSN)

	if s := os.Getenv("KAFKA_BROKERS"); s != "" {
		c.Kafka.Brokers = splitList(s)
	}
	envString("KAFKA_TOPIC", &c.Kafka.Topic)

	envString("WEB_HOST", &c.Web.Host)
	errs = append(errs, envInt("WEB_PORT", &c.Web.Port))
	if s := os.Getenv("WEB_ALLOWED_ORIGINS"); s != "" {
		c.Web.AllowedOrigins = splitList(s)
	}

	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

// Validate checks enumerated settings and numeric ranges.
func (c *Config) Validate() error {
	var errs []error
	check := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("invalid %s %q (allowed: %s)", field, value, strings.Join(allowed, ", ")))
	}

	check("store mode", c.Store.Mode, ModeEmbedding, ModeImage)
	check("match strategy", c.Match.Strategy, StrategyDistance, StrategyVerify)
	check("match metric", c.Match.Metric, MetricEuclidean, MetricCosine)
	check("match index", c.Match.Index, IndexScan, IndexHNSW)
	check("ledger backend", c.Ledger.Backend, BackendCSV, BackendPostgres, BackendMariaDB)
	check("ledger dedupe policy", c.Ledger.Dedupe, DedupeSession, DedupeLedger)
	check("embedding backend", c.Embedding.Backend, EmbeddingHTTP, EmbeddingDlib)

	if c.Store.Dir == "" {
		errs = append(errs, errors.New("store dir is required"))
	}
	if c.Match.Threshold <= 0 {
		errs = append(errs, fmt.Errorf("match threshold must be positive, got %v", c.Match.Threshold))
	}
	if c.Match.HashThreshold <= 0 || c.Match.HashThreshold > 64 {
		errs = append(errs, fmt.Errorf("hash threshold must be within 1..64, got %d", c.Match.HashThreshold))
	}
	if c.Ledger.WriteRetries < 0 {
		errs = append(errs, fmt.Errorf("ledger write retries must not be negative, got %d", c.Ledger.WriteRetries))
	}
	if c.Ledger.Backend == BackendCSV && c.Ledger.Path == "" {
		errs = append(errs, errors.New("ledger path is required for the csv backend"))
	}
	if c.Ledger.Backend == BackendPostgres && c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required for the postgres ledger backend"))
	}
	if c.Ledger.Backend == BackendMariaDB && c.MariaDB.DSN == "" {
		errs = append(errs, errors.New("MARIADB_DSN is required for the mariadb ledger backend"))
	}

	return errors.Join(errs...)
}

// envString overwrites dst when the variable is set and non-empty.
func envString(key string, dst *string) {
	if s := os.Getenv(key); s != "" {
		*dst = s
	}
}

func envInt(key string, dst *int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	n, err := cast.ToIntE(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	f, err := cast.ToFloat64E(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func envBool(key string, dst *bool) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	b, err := cast.ToBoolE(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	d, err := cast.ToDurationE(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

// splitList splits a comma separated list and drops empty items.
func splitList(s string) []string {
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
