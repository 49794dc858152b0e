package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"tunehub/internal/search"
)

// ConfigFileEnv names the optional TOML file layered under the environment.
const ConfigFileEnv = "TUNEHUB_CONFIG"

type Config struct {
	HTTPAddr                string
	LogLevel                string
	LogFormat               string
	CORSOrigins             []string
	RequestTimeout          time.Duration
	UserAgent               string
	ArchiveSearchEndpoint   string
	ArchiveMetadataEndpoint string
	ArchiveDownloadEndpoint string
	YouTubeEnabled          bool
	YtDlpBinary             string
	RedisURL                string
	CacheTTL                time.Duration
	CacheDisabled           bool
	DurationBucketSeconds   int
	ScoringWeights          search.Weights
	SourceTrust             map[string]float64
	MusicDir                string
	StagingDir              string
	IngestWorkers           int
	IngestAttempts          int
	IngestRetryDelay        time.Duration
	DownloadTimeout         time.Duration
}

type fileConfig struct {
	Server struct {
		Addr        string   `toml:"addr"`
		CORSOrigins []string `toml:"cors_origins"`
	} `toml:"server"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Search struct {
		TimeoutSeconds        int    `toml:"timeout_seconds"`
		UserAgent             string `toml:"user_agent"`
		CacheTTLSeconds       int    `toml:"cache_ttl_seconds"`
		CacheDisabled         *bool  `toml:"cache_disabled"`
		DurationBucketSeconds int    `toml:"duration_bucket_seconds"`
	} `toml:"search"`
	Scoring struct {
		Weights weightsConfig      `toml:"weights"`
		Trust   map[string]float64 `toml:"trust"`
	} `toml:"scoring"`
	Archive struct {
		SearchEndpoint   string `toml:"search_endpoint"`
		MetadataEndpoint string `toml:"metadata_endpoint"`
		DownloadEndpoint string `toml:"download_endpoint"`
	} `toml:"archive"`
	YouTube struct {
		Enabled     *bool  `toml:"enabled"`
		YtDlpBinary string `toml:"ytdlp_binary"`
	} `toml:"youtube"`
	Redis struct {
		URL string `toml:"url"`
	} `toml:"redis"`
	Library struct {
		MusicDir   string `toml:"music_dir"`
		StagingDir string `toml:"staging_dir"`
	} `toml:"library"`
	Ingest struct {
		Workers                int  `toml:"workers"`
		Attempts               int  `toml:"attempts"`
		RetryDelaySeconds      *int `toml:"retry_delay_seconds"`
		DownloadTimeoutSeconds int  `toml:"download_timeout_seconds"`
	} `toml:"ingest"`
}

// weightsConfig holds only the weights present in the file; absent keys keep
// their default.
type weightsConfig struct {
	Relevance    *float64 `toml:"relevance"`
	Format       *float64 `toml:"format"`
	Trust        *float64 `toml:"trust"`
	Completeness *float64 `toml:"completeness"`
	Bitrate      *float64 `toml:"bitrate"`
}

func (w weightsConfig) applyTo(dst *search.Weights) {
	for _, field := range []struct {
		value *float64
		dst   *float64
	}{
		{w.Relevance, &dst.Relevance},
		{w.Format, &dst.Format},
		{w.Trust, &dst.Trust},
		{w.Completeness, &dst.Completeness},
		{w.Bitrate, &dst.Bitrate},
	} {
		if field.value != nil {
			*field.dst = *field.value
		}
	}
}

func defaultConfig() Config {
	return Config{
		HTTPAddr:                ":8080",
		LogLevel:                "info",
		LogFormat:               "text",
		RequestTimeout:          15 * time.Second,
		UserAgent:               "tunehub/1.0",
		ArchiveSearchEndpoint:   "https://archive.org/advancedsearch.php",
		ArchiveMetadataEndpoint: "https://archive.org/metadata/",
		ArchiveDownloadEndpoint: "https://archive.org/download/",
		YouTubeEnabled:          true,
		YtDlpBinary:             "yt-dlp",
		CacheTTL:                10 * time.Minute,
		DurationBucketSeconds:   2,
		ScoringWeights:          search.DefaultWeights(),
		MusicDir:                "/data/music",
		StagingDir:              "/data/staging",
		IngestWorkers:           2,
		IngestAttempts:          2,
		IngestRetryDelay:        2 * time.Second,
		DownloadTimeout:         30 * time.Minute,
	}
}

// LoadConfig builds the configuration from defaults, the optional TOML file
// named by TUNEHUB_CONFIG and finally the environment.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()
	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		var file fileConfig
		if err := toml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		applyFile(&cfg, file)
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyFile(cfg *Config, file fileConfig) {
	setString(&cfg.HTTPAddr, file.Server.Addr)
	if len(file.Server.CORSOrigins) > 0 {
		cfg.CORSOrigins = append([]string(nil), file.Server.CORSOrigins...)
	}
	setString(&cfg.LogLevel, strings.ToLower(file.Log.Level))
	setString(&cfg.LogFormat, strings.ToLower(file.Log.Format))
	setSeconds(&cfg.RequestTimeout, file.Search.TimeoutSeconds)
	setString(&cfg.UserAgent, file.Search.UserAgent)
	setSeconds(&cfg.CacheTTL, file.Search.CacheTTLSeconds)
	if file.Search.CacheDisabled != nil {
		cfg.CacheDisabled = *file.Search.CacheDisabled
	}
	if file.Search.DurationBucketSeconds > 0 {
		cfg.DurationBucketSeconds = file.Search.DurationBucketSeconds
	}
	file.Scoring.Weights.applyTo(&cfg.ScoringWeights)
	if len(file.Scoring.Trust) > 0 {
		cfg.SourceTrust = make(map[string]float64, len(file.Scoring.Trust))
		for source, value := range file.Scoring.Trust {
			cfg.SourceTrust[strings.ToLower(strings.TrimSpace(source))] = value
		}
	}
	setString(&cfg.ArchiveSearchEndpoint, file.Archive.SearchEndpoint)
	setString(&cfg.ArchiveMetadataEndpoint, file.Archive.MetadataEndpoint)
	setString(&cfg.ArchiveDownloadEndpoint, file.Archive.DownloadEndpoint)
	if file.YouTube.Enabled != nil {
		cfg.YouTubeEnabled = *file.YouTube.Enabled
	}
	setString(&cfg.YtDlpBinary, file.YouTube.YtDlpBinary)
	setString(&cfg.RedisURL, file.Redis.URL)
	setString(&cfg.MusicDir, file.Library.MusicDir)
	setString(&cfg.StagingDir, file.Library.StagingDir)
	if file.Ingest.Workers > 0 {
		cfg.IngestWorkers = file.Ingest.Workers
	}
	if file.Ingest.Attempts > 0 {
		cfg.IngestAttempts = file.Ingest.Attempts
	}
	if delay := file.Ingest.RetryDelaySeconds; delay != nil && *delay >= 0 {
		cfg.IngestRetryDelay = time.Duration(*delay) * time.Second
	}
	setSeconds(&cfg.DownloadTimeout, file.Ingest.DownloadTimeoutSeconds)
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", cfg.LogFormat))
	if origins := parseCSV(os.Getenv("CORS_ORIGINS")); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}
	cfg.RequestTimeout = getEnvSeconds("SEARCH_TIMEOUT_SECONDS", cfg.RequestTimeout)
	cfg.UserAgent = getEnv("SEARCH_USER_AGENT", cfg.UserAgent)
	cfg.ArchiveSearchEndpoint = getEnv("ARCHIVE_SEARCH_ENDPOINT", cfg.ArchiveSearchEndpoint)
	cfg.ArchiveMetadataEndpoint = getEnv("ARCHIVE_METADATA_ENDPOINT", cfg.ArchiveMetadataEndpoint)
	cfg.ArchiveDownloadEndpoint = getEnv("ARCHIVE_DOWNLOAD_ENDPOINT", cfg.ArchiveDownloadEndpoint)
	cfg.YouTubeEnabled = getEnvBool("YOUTUBE_ENABLED", cfg.YouTubeEnabled)
	cfg.YtDlpBinary = getEnv("YTDLP_BINARY", cfg.YtDlpBinary)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.CacheTTL = getEnvSeconds("SEARCH_CACHE_TTL_SECONDS", cfg.CacheTTL)
	cfg.CacheDisabled = getEnvBool("SEARCH_CACHE_DISABLED", cfg.CacheDisabled)
	cfg.DurationBucketSeconds = getEnvInt("DURATION_BUCKET_SECONDS", cfg.DurationBucketSeconds)
	cfg.MusicDir = getEnv("MUSIC_DIR", cfg.MusicDir)
	cfg.StagingDir = getEnv("STAGING_DIR", cfg.StagingDir)
	cfg.IngestWorkers = getEnvInt("INGEST_WORKERS", cfg.IngestWorkers)
	cfg.IngestAttempts = getEnvInt("INGEST_ATTEMPTS", cfg.IngestAttempts)
	cfg.IngestRetryDelay = getEnvDelay("INGEST_RETRY_DELAY_SECONDS", cfg.IngestRetryDelay)
	cfg.DownloadTimeout = getEnvSeconds("DOWNLOAD_TIMEOUT_SECONDS", cfg.DownloadTimeout)
}

// EnsureDirectories creates the library and staging roots.
func (c Config) EnsureDirectories() error {
	for _, dir := range []string{c.MusicDir, c.StagingDir} {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("library and staging directories are required")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func setString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

func setSeconds(dst *time.Duration, seconds int) {
	if seconds > 0 {
		*dst = time.Duration(seconds) * time.Second
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	seconds := getEnvInt(key, -1)
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// getEnvDelay is getEnvSeconds that also accepts 0, meaning no delay.
func getEnvDelay(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Second
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if value := strings.TrimSpace(part); value != "" {
			out = append(out, value)
		}
	}
	return out
}
