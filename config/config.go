package config

import (
	"fmt"
	"time"

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

	HTTPPort string `envconfig:"HTTP_PORT" default:"4280"`

	// Moderator-Schlüssel für Review- und Sync-Endpoints.
	ModeratorAPIKey string `envconfig:"MODERATOR_API_KEY"`

	// Blob-Storage (S3-kompatibel, z.B. Strato HiDrive oder MinIO-Gateway)
	BlobS3Key    string `envconfig:"BLOB_S3_KEY" required:"true"`
	BlobS3Secret string `envconfig:"BLOB_S3_SECRET" required:"true"`
	BlobS3URL    string `envconfig:"BLOB_S3_URL" required:"true"`
	BlobS3Region string `envconfig:"BLOB_S3_REGION" required:"true"`
	BlobS3Bucket string `envconfig:"BLOB_S3_BUCKET" required:"true"`

	// Embedding-Service (externer Dienst, liefert Vektoren fester Länge)
	EmbeddingBaseURL string        `envconfig:"EMBEDDING_BASE_URL"`
	EmbeddingAPIKey  string        `envconfig:"EMBEDDING_API_KEY"`
	EmbeddingModel   string        `envconfig:"EMBEDDING_MODEL" default:"nomic-embed-text"`
	EmbeddingDims    int           `envconfig:"EMBEDDING_DIMS" default:"768"`
	EmbeddingTimeout time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"20s"`
	EmbedDuringSync  bool          `envconfig:"EMBED_DURING_SYNC" default:"true"`

	// Sync-Engine
	SyncRequestDelay time.Duration `envconfig:"SYNC_REQUEST_DELAY" default:"1s"`
	SyncPageTimeout  time.Duration `envconfig:"SYNC_PAGE_TIMEOUT" default:"30s"`
	SyncBatchSize    int           `envconfig:"SYNC_BATCH_SIZE" default:"50"`
	CronSchedule     string        `envconfig:"CRON_SCHEDULE" default:"0 3 * * *"`

	// Cache vor dem Blob-Store
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"15m"`

	// Moderations-Limits pro Submitter-IP
	MaxOpenEditsPerIP    int           `envconfig:"MAX_OPEN_EDITS_PER_IP" default:"5"`
	MaxEditsPerWindow    int           `envconfig:"MAX_EDITS_PER_WINDOW" default:"10"`
	EditSubmissionWindow time.Duration `envconfig:"EDIT_SUBMISSION_WINDOW" default:"24h"`

	// Such-Limits pro Client-IP
	SearchRateLimit  int           `envconfig:"SEARCH_RATE_LIMIT" default:"30"`
	SearchRateWindow time.Duration `envconfig:"SEARCH_RATE_WINDOW" default:"1m"`

	// Cross-Referenz-Detektor
	CrossRefThreshold float64       `envconfig:"CROSSREF_THRESHOLD" default:"0.55"`
	CrossRefMaxAge    time.Duration `envconfig:"CROSSREF_MAX_AGE" default:"168h"`
	CrossRefBatchSize int           `envconfig:"CROSSREF_BATCH_SIZE" default:"200"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
