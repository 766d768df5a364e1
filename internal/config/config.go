package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	StoreDriver           string
	DatabaseURL           string
	SQLitePath            string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	StockCacheTTLSeconds  int
	AuthSecret            string
	AccessTokenTTLMinutes int
	AdminPassword         string
	CashierPassword       string
	LogLevel              string
	LogFormat             string
	InternalEANPrefix     string
	ExpiryAlertDays       []int
	LowStockThreshold     float64
	DefaultVATRate        int
}

// LoadDotEnv reads a .env file when present. Variables already set in the
// environment win.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cacheTTL, err := strconv.Atoi(getEnv("STOCK_CACHE_TTL_SECONDS", "60"))
	if err != nil || cacheTTL < 0 {
		cacheTTL = 60
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	lowStock, err := strconv.ParseFloat(getEnv("LOW_STOCK_THRESHOLD", "5"), 64)
	if err != nil || lowStock < 0 {
		lowStock = 5
	}
	vat, err := strconv.Atoi(getEnv("DEFAULT_VAT_RATE", "9"))
	if err != nil || vat < 0 || vat > 100 {
		vat = 9
	}

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	driver := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER")))
	if driver == "" {
		driver = DriverSQLite
		if databaseURL != "" {
			driver = DriverPostgres
		}
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		StoreDriver:           driver,
		DatabaseURL:           databaseURL,
		SQLitePath:            getEnv("SQLITE_PATH", "magazin.sqlite"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		StockCacheTTLSeconds:  cacheTTL,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		AdminPassword:         strings.TrimSpace(os.Getenv("ADMIN_PASSWORD")),
		CashierPassword:       strings.TrimSpace(os.Getenv("CASHIER_PASSWORD")),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "json"),
		InternalEANPrefix:     getEnv("INTERNAL_EAN_PREFIX", "290"),
		ExpiryAlertDays:       parseDays(getEnv("EXPIRY_ALERT_DAYS", "7,14,30")),
		LowStockThreshold:     lowStock,
		DefaultVATRate:        vat,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func parseDays(raw string) []int {
	days := make([]int, 0, 3)
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			continue
		}
		days = append(days, n)
	}
	if len(days) == 0 {
		return []int{7, 14, 30}
	}
	return days
}
