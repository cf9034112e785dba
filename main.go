package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"qpaper-archive/auth"
	"qpaper-archive/config"
	"qpaper-archive/models"
	"qpaper-archive/resolver"
	"qpaper-archive/search"
	"qpaper-archive/storage"
	"qpaper-archive/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	papersUploadedCounter prometheus.Counter
	papersApprovedCounter prometheus.Counter
	searchRequestsCounter prometheus.Counter
	trashPurgedCounter    prometheus.Counter
)

func init() {
	papersUploadedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "papers_uploaded_total",
		Help: "Total number of question papers submitted through the upload endpoint.",
	})
	papersApprovedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "papers_approved_total",
		Help: "Total number of uploaded papers approved by an admin.",
	})
	searchRequestsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "search_requests_total",
		Help: "Total number of search requests served.",
	})
	trashPurgedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trash_purged_total",
		Help: "Total number of soft-deleted papers permanently removed by the purge job.",
	})
	prometheus.MustRegister(papersUploadedCounter, papersApprovedCounter,
		searchRequestsCounter, trashPurgedCounter)
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to papers database.")

	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(&models.Paper{}); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	// Objektspeicher je nach Konfiguration: lokaler Verzeichnisbaum oder S3.
	var objects storage.ObjectStore
	switch cfg.StorageBackend {
	case "s3":
		s3Store, err := storage.NewS3Store(cfg)
		if err != nil {
			logging.Fatal("S3 store creation failed", zap.Error(err))
		}
		objects = s3Store
	case "fs":
		objects = storage.NewFSStore(cfg.StorageRoot)
	default:
		logging.Fatal("Unknown storage backend", zap.String("backend", cfg.StorageBackend))
	}

	pathResolver := resolver.New(cfg.StaticBaseURL)
	paperStore := store.New(store.NewGormRepository(db), objects, pathResolver, logging, cfg.TrashPageSize)
	verifier := auth.New(cfg, logging)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.StorageBackend == "fs" {
		router.Static("/static", cfg.StorageRoot)
	}

	setupSearchRoutes(router, paperStore, logging)
	setupUploadRoutes(router, paperStore, logging)
	setupAuthRoutes(router, verifier, logging)
	setupAdminRoutes(router, paperStore, verifier, logging)

	// Papierkorb-Endreinigung: alte Soft-Deletes werden zyklisch endgültig
	// entfernt.
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		retention := time.Duration(cfg.TrashRetentionDays) * 24 * time.Hour
		count, err := paperStore.PurgeExpiredTrash(context.Background(), retention)
		if err != nil {
			logging.Error("Trash purge failed", zap.Error(err))
			return
		}
		logging.Info("Trash purge completed", zap.Int("purged", count))
		trashPurgedCounter.Add(float64(count))
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// storeErrorStatus bildet die Store-Fehler auf HTTP-Statuscodes ab.
func storeErrorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrLibraryImmutable):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func setupSearchRoutes(router *gin.Engine, papers *store.PaperStore, log *zap.Logger) {
	rg := router.Group("/papers")

	// GET /papers/search?course=...&exam=...&year=...&semester=...
	rg.GET("/search", func(c *gin.Context) {
		searchRequestsCounter.Inc()

		filters := search.Filters{Exam: c.Query("exam")}
		if y := c.Query("year"); y != "" {
			year, err := strconv.Atoi(y)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
				return
			}
			filters.Year = year
		}
		if s := c.Query("semester"); s != "" {
			filters.Semester = models.ParseSemester(s)
		}

		hits, err := papers.Search(c.Request.Context(), c.Query("course"), filters)
		if err != nil {
			log.Error("Search failed", zap.Error(err))
			c.JSON(storeErrorStatus(err), gin.H{"error": "search failed"})
			return
		}
		// Keine Treffer sind kein Fehler.
		if hits == nil {
			hits = []store.SearchHit{}
		}
		c.JSON(http.StatusOK, hits)
	})
}

func setupUploadRoutes(router *gin.Engine, papers *store.PaperStore, log *zap.Logger) {
	rg := router.Group("/papers")

	// POST /papers/upload: Multipart mit Datei und Metadaten-Feldern.
	// Uploads landen in der Review-Warteschlange, nicht im Suchindex.
	rg.POST("/upload", func(c *gin.Context) {
		meta, ok := metaFromForm(c)
		if !ok {
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		f, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
			return
		}

		view, err := papers.InsertUploadedPaper(c.Request.Context(), meta, data)
		if err != nil {
			log.Error("Upload insert failed", zap.Error(err))
			c.JSON(storeErrorStatus(err), gin.H{"error": "failed to store paper"})
			return
		}
		papersUploadedCounter.Inc()
		c.JSON(http.StatusCreated, view)
	})
}

func setupAuthRoutes(router *gin.Engine, verifier *auth.Verifier, log *zap.Logger) {
	// POST /oauth: OAuth-Code gegen Session-Credential tauschen.
	router.POST("/oauth", func(c *gin.Context) {
		var req struct {
			Code string `json:"code" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
			return
		}

		token, err := verifier.ExchangeCode(c.Request.Context(), req.Code)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"token": token})
		case errors.Is(err, auth.ErrInvalidCode):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid authorization code"})
		case errors.Is(err, auth.ErrUnauthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": "not an admin"})
		default:
			log.Error("OAuth exchange failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "identity provider failure"})
		}
	})

	// GET /profile: Identität hinter dem Credential.
	router.GET("/profile", authMiddleware(verifier), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": c.GetString("username")})
	})
}

// authMiddleware prüft das Bearer-Credential lokal; nur mutierende Routen
// hängen dahinter, die Suche bleibt öffentlich.
func authMiddleware(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		const prefix = "Bearer "
		header := c.GetHeader("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer credential"})
			return
		}
		username, err := verifier.Verify(header[len(prefix):])
		if err != nil {
			msg := "invalid credential"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "credential expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}
		c.Set("username", username)
		c.Next()
	}
}

func setupAdminRoutes(router *gin.Engine, papers *store.PaperStore, verifier *auth.Verifier, log *zap.Logger) {
	rg := router.Group("/admin")
	rg.Use(authMiddleware(verifier))

	rg.GET("/unapproved", func(c *gin.Context) {
		views, err := papers.ListUnapproved(c.Request.Context())
		if err != nil {
			log.Error("Listing unapproved papers failed", zap.Error(err))
			c.JSON(storeErrorStatus(err), gin.H{"error": "database error"})
			return
		}
		if views == nil {
			views = []store.PaperView{}
		}
		c.JSON(http.StatusOK, views)
	})

	rg.GET("/trash", func(c *gin.Context) {
		views, err := papers.ListTrash(c.Request.Context())
		if err != nil {
			log.Error("Listing trash failed", zap.Error(err))
			c.JSON(storeErrorStatus(err), gin.H{"error": "database error"})
			return
		}
		if views == nil {
			views = []store.PaperView{}
		}
		c.JSON(http.StatusOK, views)
	})

	// POST /admin/library: Einzel-Insert eines Bibliotheks-Scans; die Datei
	// liegt bereits am Zielpfad (Batch-Ingest) oder kommt per Multipart.
	rg.POST("/library", func(c *gin.Context) {
		meta, ok := metaFromForm(c)
		if !ok {
			return
		}
		var data []byte
		if fileHeader, err := c.FormFile("file"); err == nil {
			f, err := fileHeader.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
				return
			}
			defer f.Close()
			if data, err = io.ReadAll(f); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
				return
			}
		}

		view, err := papers.InsertLibraryPaper(c.Request.Context(), meta, data)
		if err != nil {
			log.Error("Library insert failed", zap.Error(err))
			c.JSON(storeErrorStatus(err), gin.H{"error": "failed to store paper"})
			return
		}
		c.JSON(http.StatusCreated, view)
	})

	// PUT /admin/papers/:id: Metadaten-Korrektur, verschiebt bei Bedarf die
	// Datei mit.
	rg.PUT("/papers/:id", func(c *gin.Context) {
		id, ok := paperID(c)
		if !ok {
			return
		}
		var meta models.Meta
		if err := c.ShouldBindJSON(&meta); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		meta.Canonicalize()
		if err := meta.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		view, err := papers.EditPaper(c.Request.Context(), id, meta)
		if err != nil {
			if errors.Is(err, store.ErrRelocationFailed) {
				log.Error("Edit rolled back, relocation failed",
					zap.String("id", id.String()), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "file relocation failed, edit rolled back"})
				return
			}
			c.JSON(storeErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, view)
	})

	rg.POST("/papers/:id/approve", func(c *gin.Context) {
		id, ok := paperID(c)
		if !ok {
			return
		}
		view, err := papers.SetApproval(c.Request.Context(), id, true)
		if err != nil {
			c.JSON(storeErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		papersApprovedCounter.Inc()
		c.JSON(http.StatusOK, view)
	})

	rg.POST("/papers/:id/reject", func(c *gin.Context) {
		id, ok := paperID(c)
		if !ok {
			return
		}
		view, err := papers.Reject(c.Request.Context(), id)
		if err != nil {
			c.JSON(storeErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, view)
	})

	rg.POST("/papers/:id/delete", func(c *gin.Context) {
		id, ok := paperID(c)
		if !ok {
			return
		}
		view, err := papers.SoftDelete(c.Request.Context(), id)
		if err != nil {
			c.JSON(storeErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, view)
	})

	rg.POST("/papers/:id/restore", func(c *gin.Context) {
		id, ok := paperID(c)
		if !ok {
			return
		}
		view, err := papers.Restore(c.Request.Context(), id)
		if err != nil {
			c.JSON(storeErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, view)
	})

	// POST /admin/papers/hard-delete: Batch mit unabhängigen Einzel-
	// Ergebnissen, niemals alles-oder-nichts.
	rg.POST("/papers/hard-delete", func(c *gin.Context) {
		var req struct {
			IDs []string `json:"ids" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ids are required"})
			return
		}
		ids := make([]uuid.UUID, 0, len(req.IDs))
		for _, raw := range req.IDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id: " + raw})
				return
			}
			ids = append(ids, id)
		}
		c.JSON(http.StatusOK, papers.HardDelete(c.Request.Context(), ids))
	})
}

func paperID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid paper id"})
		return uuid.Nil, false
	}
	return id, true
}

// metaFromForm liest und validiert die Metadaten-Felder eines
// Multipart-Formulars. Bei Fehlern ist die Antwort bereits geschrieben.
func metaFromForm(c *gin.Context) (models.Meta, bool) {
	year := 0
	if y := c.PostForm("year"); y != "" {
		var err error
		if year, err = strconv.Atoi(y); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
			return models.Meta{}, false
		}
	}
	meta := models.Meta{
		CourseCode: c.PostForm("course_code"),
		CourseName: c.PostForm("course_name"),
		Year:       year,
		Semester:   models.Semester(c.PostForm("semester")),
		Exam:       models.Exam(c.PostForm("exam")),
	}
	meta.Canonicalize()
	if err := meta.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.Meta{}, false
	}
	return meta, true
}
