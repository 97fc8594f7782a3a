// Package config assembles the typed runtime configuration from the
// environment.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tcdynamics/workflowai/internal/pkg/billing"
	"github.com/tcdynamics/workflowai/internal/pkg/database"
	"github.com/tcdynamics/workflowai/internal/pkg/env"
	"github.com/tcdynamics/workflowai/internal/pkg/mail"
)

const (
	DedupBackendMemory = "memory"
	DedupBackendRedis  = "redis"
)

type AppConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	Env      string `validate:"oneof=dev prod test"`
	LogLevel string `validate:"oneof=trace debug info warn error"`
}

type CacheConfig struct {
	Host     string
	Port     string `validate:"omitempty,numeric"`
	Password string
}

// Enabled reports whether a Redis host is configured.
func (c CacheConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

type PolarConfig struct {
	WebhookSecret         string
	StarterProductID      string `validate:"required_with=WebhookSecret"`
	ProfessionalProductID string `validate:"required_with=WebhookSecret"`
	EnterpriseProductID   string `validate:"required_with=WebhookSecret"`
	FallbackPlan          string `validate:"required,oneof=starter professional enterprise"`
	DedupBackend          string `validate:"oneof=memory redis"`
}

// PlanConfig returns the product mapping for the configured tiers. Empty
// product ids are left out so that an unconfigured deployment still starts.
func (p PolarConfig) PlanConfig() billing.PlanConfig {
	products := map[string]string{}
	for plan, id := range map[string]string{
		billing.PlanStarter:      p.StarterProductID,
		billing.PlanProfessional: p.ProfessionalProductID,
		billing.PlanEnterprise:   p.EnterpriseProductID,
	} {
		if strings.TrimSpace(id) != "" {
			products[plan] = id
		}
	}
	return billing.PlanConfig{ProductIDs: products, FallbackPlan: p.FallbackPlan}
}

type Config struct {
	App                 AppConfig
	Database            database.Config
	Cache               CacheConfig
	Polar               PolarConfig
	StripeWebhookSecret string
	SMTP                mail.SMTPConfig
	NotificationEmail   string `validate:"omitempty,email"`
	HCaptchaSecret      string
	DashboardAdminToken string `validate:"omitempty,min=32"`
	MetricsUser         string `validate:"required_with=MetricsPassword"`
	MetricsPassword     string `validate:"required_with=MetricsUser"`
	CORSAllowOrigins    string
	FormRateLimit       int `validate:"gte=0"`
	// ProxyHeader is honoured only for requests from TrustedProxies.
	ProxyHeader    string
	TrustedProxies []string `validate:"required_with=ProxyHeader,dive,ip|cidr"`
}

// Load reads the configuration through env.GetEnv.
func Load() Config {
	return Config{
		App: AppConfig{
			Host:     env.GetEnv("APP_HOST", "0.0.0.0"),
			Port:     env.GetEnv("APP_PORT", "8080"),
			Env:      env.GetEnv("APP_ENV", "prod"),
			LogLevel: strings.ToLower(env.GetEnv("LOG_LEVEL", "info")),
		},
		Database: database.Config{
			Driver:   strings.ToLower(env.GetEnv("DB_DRIVER", database.DriverMySQL)),
			User:     env.GetEnv("DB_USER", ""),
			Password: env.GetEnv("DB_PASSWORD", ""),
			Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
			Port:     env.GetEnv("DB_PORT", "3306"),
			Name:     env.GetEnv("DB_NAME", ""),
			Path:     env.GetEnv("DB_PATH", ""),
			Debug:    env.GetEnv("DB_DEBUG", "") == "true",
		},
		Cache: CacheConfig{
			Host:     env.GetEnv("CACHE_HOST", ""),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
		},
		Polar: PolarConfig{
			WebhookSecret:         strings.TrimSpace(env.GetEnv("POLAR_WEBHOOK_SECRET", "")),
			StarterProductID:      env.GetEnv("POLAR_PRODUCT_STARTER", ""),
			ProfessionalProductID: env.GetEnv("POLAR_PRODUCT_PROFESSIONAL", ""),
			EnterpriseProductID:   env.GetEnv("POLAR_PRODUCT_ENTERPRISE", ""),
			FallbackPlan:          strings.ToLower(env.GetEnv("BILLING_FALLBACK_PLAN", billing.PlanStarter)),
			DedupBackend:          strings.ToLower(env.GetEnv("DEDUP_BACKEND", DedupBackendMemory)),
		},
		StripeWebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		SMTP: mail.SMTPConfig{
			Host:     env.GetEnv("SMTP_HOST", ""),
			Port:     env.GetEnv("SMTP_PORT", "587"),
			Username: env.GetEnv("SMTP_USERNAME", ""),
			Password: env.GetEnv("SMTP_PASSWORD", ""),
			Sender:   env.GetEnv("SMTP_SENDER", ""),
		},
		NotificationEmail:   env.GetEnv("NOTIFICATION_EMAIL", ""),
		HCaptchaSecret:      env.GetEnv("HCAPTCHA_SECRET", ""),
		DashboardAdminToken: env.GetEnv("DASHBOARD_ADMIN_TOKEN", ""),
		MetricsUser:         env.GetEnv("METRICS_USER", ""),
		MetricsPassword:     env.GetEnv("METRICS_PASSWORD", ""),
		CORSAllowOrigins:    env.GetEnv("CORS_ALLOW_ORIGINS", "*"),
		FormRateLimit:       atoi(env.GetEnv("FORM_RATE_LIMIT", "5")),
		ProxyHeader:         strings.TrimSpace(env.GetEnv("PROXY_HEADER", "")),
		TrustedProxies:      splitList(env.GetEnv("TRUSTED_PROXIES", "")),
	}
}

// Validate checks field constraints and the product-to-plan mapping.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Polar.DedupBackend == DedupBackendRedis && !c.Cache.Enabled() {
		return fmt.Errorf("config: DEDUP_BACKEND=redis requires CACHE_HOST")
	}
	if err := c.Polar.PlanConfig().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func atoi(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return -1
	}
	return n
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.App.Host, c.App.Port)
}

func (c Config) IsDev() bool {
	return c.App.Env == "dev"
}
