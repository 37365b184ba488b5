package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	BranchID              string
	MerchantTradeName     string
	MerchantVATNumber     string
	Currency              string
	TaxRatePercent        float64
	FXRate                float64
	InvoiceTerms          string
	InvoiceNetDays        int
	ReportCacheTTLSeconds int
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cacheTTL, err := strconv.Atoi(getEnv("REPORT_CACHE_TTL_SECONDS", "300"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 300
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	taxRate, err := strconv.ParseFloat(getEnv("TAX_RATE_PERCENT", "15"), 64)
	if err != nil || taxRate < 0 || taxRate > 100 {
		taxRate = 15
	}
	fxRate, err := strconv.ParseFloat(getEnv("FX_RATE", "1"), 64)
	if err != nil || fxRate <= 0 {
		fxRate = 1
	}
	netDays, err := strconv.Atoi(getEnv("INVOICE_NET_DAYS", "0"))
	if err != nil || netDays < 0 {
		netDays = 0
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		BranchID:              getEnv("DEFAULT_BRANCH_ID", "main-branch"),
		MerchantTradeName:     getEnv("MERCHANT_TRADE_NAME", "Qayd Restaurant"),
		MerchantVATNumber:     getEnv("MERCHANT_VAT_NUMBER", ""),
		Currency:              getEnv("CURRENCY", "SAR"),
		TaxRatePercent:        taxRate,
		FXRate:                fxRate,
		InvoiceTerms:          getEnv("INVOICE_TERMS", "Due on receipt"),
		InvoiceNetDays:        netDays,
		ReportCacheTTLSeconds: cacheTTL,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		ManagerPIN:            strings.TrimSpace(os.Getenv("MANAGER_PIN")),
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
