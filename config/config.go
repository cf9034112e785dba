package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort string `envconfig:"HTTP_PORT" default:"4243"`

	// Ablage der Paper-Dateien: "fs" (lokaler Verzeichnisbaum) oder "s3".
	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"fs"`
	StorageRoot    string `envconfig:"STORAGE_ROOT" default:"./static"`
	// Basis-URL, unter der die abgelegten Dateien öffentlich erreichbar sind.
	StaticBaseURL string `envconfig:"STATIC_BASE_URL" default:"http://localhost:4243/static"`

	S3Key    string `envconfig:"S3_KEY"`
	S3Secret string `envconfig:"S3_SECRET"`
	S3URL    string `envconfig:"S3_URL"`
	S3Region string `envconfig:"S3_REGION"`
	S3Bucket string `envconfig:"S3_BUCKET"`

	// GitHub-OAuth für den Admin-Login.
	GithubClientID     string `envconfig:"GH_CLIENT_ID" required:"true"`
	GithubClientSecret string `envconfig:"GH_CLIENT_SECRET" required:"true"`
	// Privilegiertes Token mit Lesezugriff auf die Team-Mitgliedschaften.
	GithubAdminToken string `envconfig:"GH_ADMIN_TOKEN" required:"true"`
	GithubOrg        string `envconfig:"GH_ORG" required:"true"`
	GithubTeam       string `envconfig:"GH_TEAM" required:"true"`
	// Zusätzliche Admin-Logins außerhalb des Teams, kommasepariert.
	AdminAllowList string `envconfig:"ADMIN_ALLOW_LIST"`

	JWTSecret      string `envconfig:"JWT_SECRET" required:"true"`
	JWTExpiryHours int    `envconfig:"JWT_EXPIRY_HOURS" default:"24"`

	// Zeitplan für das endgültige Löschen alter Papierkorb-Einträge.
	CronSchedule       string `envconfig:"CRON_SCHEDULE" default:"0 3 * * *"`
	TrashRetentionDays int    `envconfig:"TRASH_RETENTION_DAYS" default:"30"`
	TrashPageSize      int    `envconfig:"TRASH_PAGE_SIZE" default:"50"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// AdminAllowListEntries zerlegt die kommaseparierte Allow-List in einzelne Logins.
func (c *Config) AdminAllowListEntries() []string {
	if strings.TrimSpace(c.AdminAllowList) == "" {
		return nil
	}
	parts := strings.Split(c.AdminAllowList, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
