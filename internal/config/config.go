package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	// BatchSize and BatchFlushInterval bound how many batch messages are
	// polled from Kafka per cycle.
	BatchSize          int
	BatchFlushInterval time.Duration
	MaxBatchReports    int

	// Incident formation.
	ProximityRadiusMeters float64
	KMeansSplitThreshold  int
	KMeansSpreadTolerance float64
	KMeansMaxIterations   int
	KMeansEpsilonMeters   float64
	SimilarityThreshold   float64
	VerifyMinReports      int

	// Authenticity scoring and reference corpus.
	ScorerWorkers         int
	ScoreCacheSize        int
	CorpusFile            string
	NewsFeedURL           string
	NewsFeedTimeout       time.Duration
	CorpusRefreshSchedule string
	MaxCorpusItems        int

	// Incident state store. An empty RedisAddr keeps state in memory.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "disaster-report-batches"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "disaster-incidents"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "disaster-incident-pipeline"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		CorpusFile:            os.Getenv("CORPUS_FILE"),
		NewsFeedURL:           os.Getenv("NEWS_FEED_URL"),
		CorpusRefreshSchedule: sharedcfg.EnvOrDefault("CORPUS_REFRESH_SCHEDULE", "@every 15m"),

		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisKeyPrefix: sharedcfg.EnvOrDefault("REDIS_KEY_PREFIX", "incidents"),
	}

	ints := []struct {
		key string
		def int
		min int
		dst *int
	}{
		{"MAX_BATCH_REPORTS", 100, 1, &cfg.MaxBatchReports},
		{"KMEANS_SPLIT_THRESHOLD", 20, 1, &cfg.KMeansSplitThreshold},
		{"KMEANS_MAX_ITERATIONS", 50, 1, &cfg.KMeansMaxIterations},
		{"VERIFY_MIN_REPORTS", 2, 1, &cfg.VerifyMinReports},
		{"SCORER_WORKERS", runtime.NumCPU(), 1, &cfg.ScorerWorkers},
		{"SCORE_CACHE_SIZE", 1000, 1, &cfg.ScoreCacheSize},
		{"MAX_CORPUS_ITEMS", 5000, 1, &cfg.MaxCorpusItems},
		{"REDIS_DB", 0, 0, &cfg.RedisDB},
	}
	for _, p := range ints {
		if *p.dst, err = parseInt(p.key, p.def, p.min); err != nil {
			return nil, err
		}
	}

	floats := []struct {
		key string
		def float64
		dst *float64
	}{
		{"PROXIMITY_RADIUS_METERS", 50, &cfg.ProximityRadiusMeters},
		{"KMEANS_SPREAD_TOLERANCE", 2, &cfg.KMeansSpreadTolerance},
		{"KMEANS_EPSILON_METERS", 0.01, &cfg.KMeansEpsilonMeters},
	}
	for _, p := range floats {
		if *p.dst, err = parsePositiveFloat(p.key, p.def); err != nil {
			return nil, err
		}
	}

	if cfg.SimilarityThreshold, err = parseFraction("SIMILARITY_THRESHOLD", 0.3); err != nil {
		return nil, err
	}
	if cfg.NewsFeedTimeout, err = parseDuration("NEWS_FEED_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}

	return cfg, nil
}

func parseInt(key string, def, minimum int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s %q: must be an integer >= %d", key, s, minimum)
	}
	return n, nil
}

func parsePositiveFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !(f > 0) {
		return 0, fmt.Errorf("invalid %s %q: must be a positive number", key, s)
	}
	return f, nil
}

func parseFraction(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !(f >= 0 && f <= 1) {
		return 0, fmt.Errorf("invalid %s %q: must be between 0 and 1", key, s)
	}
	return f, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, s)
	}
	return d, nil
}
