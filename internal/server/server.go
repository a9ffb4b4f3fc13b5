package server

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/schedscope/schedscope/internal/utils"
	"github.com/schedscope/schedscope/pkg/acquire"
	"github.com/schedscope/schedscope/pkg/catalog"
	"github.com/schedscope/schedscope/pkg/schedule"
	"github.com/schedscope/schedscope/pkg/storage"
)

//go:embed web
var WebFS embed.FS

// Catalog lists institutes and groups.
type Catalog interface {
	Institutes(ctx context.Context) ([]catalog.Institute, error)
	Groups(ctx context.Context, institute string, course int) ([]catalog.Group, error)
}

// Fetcher returns the schedule of one query.
type Fetcher interface {
	Fetch(ctx context.Context, q schedule.Query) (*acquire.Result, error)
}

type Server struct {
	Catalog  Catalog
	Fetcher  Fetcher
	DB       *storage.DB // optional
	Username string
	Password string
	Log      logrus.FieldLogger
}

func New(cat Catalog, f Fetcher, db *storage.DB, user, pass string, log logrus.FieldLogger) *Server {
	return &Server{
		Catalog:  cat,
		Fetcher:  f,
		DB:       db,
		Username: user,
		Password: pass,
		Log:      utils.OrDiscard(log),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() (http.Handler, error) {
	if s.Log == nil {
		s.Log = utils.Discard()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Group(func(r chi.Router) {
		r.Use(s.basicAuth)
		r.Get("/api/institutes", s.handleInstitutes)
		r.Get("/api/groups/{institute}", s.handleGroups)
		r.Get("/api/schedule/{group}", s.handleSchedule)
		r.Get("/api/stats", s.handleStats)
	})

	// Static Files
	webRoot, err := fs.Sub(WebFS, "web")
	if err != nil {
		return nil, err
	}
	r.With(s.basicAuth).Handle("/*", http.FileServer(http.FS(webRoot)))
	return r, nil
}

func (s *Server) Start(addr string) error {
	h, err := s.Router()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.Log.Infof("Starting server on %s", addr)
	return srv.ListenAndServe()
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start).Round(time.Millisecond),
		}).Debug("Request served")
	})
}
