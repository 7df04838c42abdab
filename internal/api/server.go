// Package api serves the ledger over HTTP: page uploads as stroke JSON,
// name lookups and page images.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sadopc/veresia/internal/config"
	"github.com/sadopc/veresia/internal/pipeline"
	"github.com/sadopc/veresia/internal/store"
	"golang.org/x/time/rate"
)

// Repository is what the handlers read and write. Both the SQLite and the
// Postgres stores satisfy it.
type Repository interface {
	pipeline.Repository
	GetPage(id int64) (*store.Page, error)
	ListEntriesByName(name string) ([]store.Entry, error)
	SumByName(name string) (int64, error)
	SearchNames(q string) ([]store.NameTotal, error)
	EntriesForPage(pageID int64) ([]store.Entry, error)
}

// Request budget shared by all clients: 10 per second with bursts of 30.
const (
	rateEvery = 100 * time.Millisecond
	rateBurst = 30
)

type Server struct {
	cfg     *config.Config
	repo    Repository
	saver   *pipeline.Saver
	log     *slog.Logger
	limiter *rate.Limiter

	// saving is held while a page save runs; a second upload gets 409.
	saving sync.Mutex
}

func New(cfg *config.Config, repo Repository, saver *pipeline.Saver, log *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		repo:    repo,
		saver:   saver,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(rateEvery), rateBurst),
	}
}

// Router builds the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(s.rateLimit())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "recognizer": s.saver.Recognizer().Name()})
	})

	api := r.Group("/api")
	api.POST("/pages", s.createPage)
	api.GET("/pages/:id", s.getPage)
	api.GET("/pages/:id/image", s.pageImage)
	api.GET("/pages/:id/thumbnail", s.pageThumbnail)
	api.GET("/entries", s.listEntries)
	api.GET("/entries/export", s.exportEntries)
	api.GET("/names", s.searchNames)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
