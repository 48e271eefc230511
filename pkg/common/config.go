package common

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	CreateChargeTimeout = 30 * time.Second
	PollChargeTimeout   = 10 * time.Second
	DefaultComment      = "Pagamento de campanha publicitária"
	DefaultExpiresIn    = 900
)

type Config struct {
	Port              string
	WooviBaseURL      string
	WooviSandboxURL   string
	WooviAppID        string
	WooviSandboxAppID string
	WebhookSecret     string
	WebhookURL        string
	SweepInterval     time.Duration
	SweepGrace        time.Duration
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Arquivo .env não encontrado, usando variáveis de ambiente do sistema")
	}

	cfg := &Config{
		Port:              GetEnv("PORT", "4000"),
		WooviBaseURL:      GetEnv("WOOVI_BASE_URL", "https://api.woovi.com"),
		WooviSandboxURL:   GetEnv("WOOVI_SANDBOX_URL", "https://api.woovi-sandbox.com"),
		WooviAppID:        GetEnv("WOOVI_APP_ID", ""),
		WooviSandboxAppID: GetEnv("WOOVI_SANDBOX_APP_ID", ""),
		WebhookSecret:     GetEnv("WOOVI_WEBHOOK_SECRET", "default_secret"),
		WebhookURL:        GetEnv("WOOVI_WEBHOOK_URL", "http://localhost:4000/api/woovi-webhook"),
		SweepInterval:     getEnvSeconds("RECONCILER_SWEEP_INTERVAL", 15),
		SweepGrace:        getEnvSeconds("RECONCILER_SWEEP_GRACE", 30),
	}

	log.Println("Configuração Woovi carregada:")
	log.Printf("Base URL: %s", cfg.WooviBaseURL)
	log.Printf("App ID (Produção): %s", configured(cfg.WooviAppID != ""))
	log.Printf("App ID (Sandbox): %s", configured(cfg.WooviSandboxAppID != ""))
	log.Printf("Webhook Secret: %s", configured(cfg.WebhookSecret != "default_secret"))
	log.Printf("Webhook URL: %s", cfg.WebhookURL)

	return cfg
}

// WooviURL retorna a base URL do ambiente escolhido na criação da cobrança.
func (c *Config) WooviURL(env Environment) string {
	if env == EnvironmentSandbox {
		return c.WooviSandboxURL
	}
	return c.WooviBaseURL
}

// WooviCredential retorna o App ID usado como header Authorization.
func (c *Config) WooviCredential(env Environment) string {
	if env == EnvironmentSandbox {
		return c.WooviSandboxAppID
	}
	return c.WooviAppID
}

func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	secs, err := strconv.Atoi(GetEnv(key, strconv.Itoa(fallback)))
	if err != nil || secs <= 0 {
		secs = fallback
	}
	return time.Duration(secs) * time.Second
}

func configured(ok bool) string {
	if ok {
		return "configurado"
	}
	return "NÃO CONFIGURADO"
}
