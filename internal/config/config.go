package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/golang-sql/civil"
)

// Warehouse kinds accepted by WAREHOUSE_KIND. An empty kind disables the load.
const (
	WarehouseSQLite   = "sqlite"
	WarehousePostgres = "postgres"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	DataDir         string
	RawTicketsPath  string
	RawCapacityPath string
	RawWeatherPath  string
	CleanDir        string
	MarketsFile     string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Open-Meteo archive ingestion.
	WeatherIngest     bool
	WeatherBaseURL    string
	WeatherStartDate  civil.Date
	WeatherEndDate    civil.Date
	WeatherHourlyVars []string
	WeatherTimeout    time.Duration

	// Fact table loading. Kafka publishing is disabled when KafkaBrokers is
	// empty; the warehouse load is disabled when WarehouseKind is empty.
	KafkaBrokers   []string
	KafkaFactTopic string
	ParquetPath    string
	WarehouseKind  string
	WarehouseDSN   string
	WarehouseTable string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	weatherTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("WEATHER_TIMEOUT", "60s"))
	if err != nil || weatherTimeout <= 0 {
		return nil, errors.New("invalid WEATHER_TIMEOUT")
	}

	weatherIngest, err := strconv.ParseBool(sharedcfg.EnvOrDefault("WEATHER_INGEST", "false"))
	if err != nil {
		return nil, errors.New("invalid WEATHER_INGEST")
	}

	start, err := civil.ParseDate(sharedcfg.EnvOrDefault("WEATHER_START_DATE", "2024-11-30"))
	if err != nil {
		return nil, errors.New("invalid WEATHER_START_DATE")
	}
	end, err := civil.ParseDate(sharedcfg.EnvOrDefault("WEATHER_END_DATE", "2025-05-04"))
	if err != nil {
		return nil, errors.New("invalid WEATHER_END_DATE")
	}

	dataDir := sharedcfg.EnvOrDefault("DATA_DIR", "data")
	cfg := &Config{
		DataDir:         dataDir,
		RawTicketsPath:  sharedcfg.EnvOrDefault("RAW_TICKETS_PATH", filepath.Join(dataDir, "raw", "pwhl_ticket_sales.csv")),
		RawCapacityPath: sharedcfg.EnvOrDefault("RAW_CAPACITY_PATH", filepath.Join(dataDir, "raw", "game_section_capacity.csv")),
		RawWeatherPath:  sharedcfg.EnvOrDefault("RAW_WEATHER_PATH", filepath.Join(dataDir, "raw", "weather_hourly_raw.csv")),
		CleanDir:        sharedcfg.EnvOrDefault("CLEAN_DIR", filepath.Join(dataDir, "cleaned")),
		MarketsFile:     sharedcfg.EnvOrDefault("MARKETS_FILE", filepath.Join("config", "markets.yml")),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		WeatherIngest:     weatherIngest,
		WeatherBaseURL:    sharedcfg.EnvOrDefault("WEATHER_BASE_URL", "https://archive-api.open-meteo.com/v1/archive"),
		WeatherStartDate:  start,
		WeatherEndDate:    end,
		WeatherHourlyVars: splitList(sharedcfg.EnvOrDefault("WEATHER_HOURLY_VARS", "temperature_2m,relative_humidity_2m,wind_speed_10m,precipitation")),
		WeatherTimeout:    weatherTimeout,

		KafkaBrokers:   parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaFactTopic: sharedcfg.EnvOrDefault("KAFKA_FACT_TOPIC", "fact-ticket-sales-with-weather"),
		ParquetPath:    sharedcfg.EnvOrDefault("PARQUET_PATH", filepath.Join(dataDir, "tmp", "fact_ticket_sales_with_weather.parquet")),
		WarehouseKind:  strings.ToLower(os.Getenv("WAREHOUSE_KIND")),
		WarehouseDSN:   os.Getenv("WAREHOUSE_DSN"),
		WarehouseTable: sharedcfg.EnvOrDefault("WAREHOUSE_TABLE", "fact_ticket_sales_with_weather"),
	}

	if cfg.WeatherEndDate.Before(cfg.WeatherStartDate) {
		return nil, fmt.Errorf("WEATHER_END_DATE %s is before WEATHER_START_DATE %s", cfg.WeatherEndDate, cfg.WeatherStartDate)
	}
	if cfg.WeatherIngest && len(cfg.WeatherHourlyVars) == 0 {
		return nil, errors.New("WEATHER_HOURLY_VARS is required when WEATHER_INGEST is true")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaFactTopic == "" {
		return nil, errors.New("KAFKA_FACT_TOPIC is required when KAFKA_BROKERS is set")
	}

	switch cfg.WarehouseKind {
	case "":
	case WarehouseSQLite:
		if cfg.WarehouseDSN == "" {
			cfg.WarehouseDSN = filepath.Join(dataDir, "warehouse.db")
		}
	case WarehousePostgres:
		if cfg.WarehouseDSN == "" {
			return nil, errors.New("WAREHOUSE_DSN is required when WAREHOUSE_KIND is postgres")
		}
	default:
		return nil, fmt.Errorf("unsupported WAREHOUSE_KIND %q", cfg.WarehouseKind)
	}
	if !identifierRe.MatchString(cfg.WarehouseTable) {
		return nil, fmt.Errorf("invalid WAREHOUSE_TABLE %q", cfg.WarehouseTable)
	}

	return cfg, nil
}

// parseBrokers returns nil for an unset variable so publishing stays off.
func parseBrokers(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return sharedcfg.ParseBrokers(s)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
