// Batch-Ingest für Bibliotheks-Scans: liest einen Verzeichnisbaum mit
// PDF-Dateien der Form CODE_JAHR_EXAM_SEMESTER.pdf, leitet die Metadaten aus
// den Dateinamen ab und legt die Paper als approved Bibliotheks-Einträge an.
package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"qpaper-archive/models"
	"qpaper-archive/resolver"
	"qpaper-archive/storage"
	"qpaper-archive/store"
)

type IngestConfig struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	StorageRoot   string `envconfig:"STORAGE_ROOT" default:"./static"`
	StaticBaseURL string `envconfig:"STATIC_BASE_URL" default:"http://localhost:4243/static"`

	IngestDir string `envconfig:"INGEST_DIR" required:"true"`
}

func main() {
	var cfg IngestConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Fehler beim Laden der Konfiguration: %v", err)
	}

	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.Paper{}); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	res := resolver.New(cfg.StaticBaseURL)
	papers := store.New(store.NewGormRepository(db), storage.NewFSStore(cfg.StorageRoot), res, logging, 0)

	inserted, skipped := 0, 0
	err = filepath.WalkDir(cfg.IngestDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}

		meta, ok := metaFromIngestName(filepath.Base(path))
		if !ok {
			logging.Warn("Dateiname nicht parsebar, übersprungen", zap.String("file", path))
			skipped++
			return nil
		}
		meta.Canonicalize()
		if verr := meta.Validate(); verr != nil {
			logging.Warn("Ungültige Metadaten, übersprungen",
				zap.String("file", path), zap.Error(verr))
			skipped++
			return nil
		}

		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return rerr
		}
		view, serr := papers.InsertLibraryPaper(context.Background(), meta, data)
		if serr != nil {
			logging.Error("Insert fehlgeschlagen", zap.String("file", path), zap.Error(serr))
			skipped++
			return nil
		}
		logging.Info("Bibliotheks-Paper angelegt",
			zap.String("id", view.ID.String()),
			zap.String("course_code", view.CourseCode),
			zap.Int("year", view.Year))
		inserted++
		return nil
	})
	if err != nil {
		logging.Fatal("Ingest abgebrochen", zap.Error(err))
	}

	logging.Info("Ingest abgeschlossen",
		zap.Int("inserted", inserted), zap.Int("skipped", skipped))
}

// metaFromIngestName zerlegt CODE_JAHR_EXAM_SEMESTER.pdf. Kursname ist aus
// dem Dateinamen nicht rekonstruierbar und bleibt leer; Exam und Semester
// laufen durch die toleranten Parser.
func metaFromIngestName(name string) (models.Meta, bool) {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(name, "_")
	if len(parts) != 4 {
		return models.Meta{}, false
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return models.Meta{}, false
	}
	return models.Meta{
		CourseCode: parts[0],
		Year:       year,
		Exam:       models.ParseExam(parts[2]),
		Semester:   models.ParseSemester(parts[3]),
	}, true
}
