package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/case-data-qc/internal/domain"
	"github.com/couchcryptid/case-data-qc/internal/resultlog"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker = sharedobs.ReadinessChecker

// Snapshots returns the current result log for a dataset.
type Snapshots interface {
	Get(ctx context.Context, ds domain.Dataset) (*resultlog.Log, error)
}

// Server exposes the check reports alongside health, readiness, and metrics.
type Server struct {
	httpServer *http.Server
	snapshots  Snapshots
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// /checks/{dataset}.{json,csv,html}, and an index page at /.
func NewServer(addr string, ready ReadinessChecker, snapshots Snapshots, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		snapshots: snapshots,
		logger:    logger,
	}

	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", gin.WrapF(sharedobs.LivenessHandler()))
	router.GET("/readyz", gin.WrapF(sharedobs.ReadinessHandler(ready)))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/checks/:file", s.handleChecks)
	router.GET("/", s.handleIndex)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String())
	}
}

// handleChecks serves one dataset in one format, e.g. /checks/working.html.
// ?fragment=true on the HTML view omits the page wrapper.
func (s *Server) handleChecks(c *gin.Context) {
	name, format, ok := strings.Cut(c.Param("file"), ".")
	ds, valid := domain.ParseDataset(name)
	if !ok || !valid {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown dataset " + c.Param("file")})
		return
	}

	var contentType string
	switch format {
	case "json":
		contentType = "application/json"
	case "csv":
		contentType = "text/csv; charset=utf-8"
	case "html":
		contentType = "text/html; charset=utf-8"
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown format " + format})
		return
	}

	log, err := s.snapshots.Get(c.Request.Context(), ds)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNoObservations) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("check request failed", "dataset", ds, "error", err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	body, err := render(log, format, c.Query("fragment"))
	if err != nil {
		s.logger.Error("render failed", "dataset", ds, "format", format, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("X-Run-Id", log.RunID())
	c.Data(http.StatusOK, contentType, body)
}

func render(log *resultlog.Log, format, fragment string) ([]byte, error) {
	switch format {
	case "json":
		return log.JSON()
	case "csv":
		return log.CSV()
	default:
		asFragment, _ := strconv.ParseBool(fragment)
		page, err := log.HTML(asFragment)
		return []byte(page), err
	}
}

const indexPage = `<html>
<body>
    <h3>Case Data QC Checks</h3>
    <table>
        <tr><th>Dataset</th><th>HTML</th><th>JSON</th><th>CSV</th></tr>
` + indexRows + `    </table>
</body>
</html>
`

const indexRows = `        <tr><td>WORKING</td><td><a href='/checks/working.html'>/checks/working.html</a></td><td><a href='/checks/working.json'>/checks/working.json</a></td><td><a href='/checks/working.csv'>/checks/working.csv</a></td></tr>
        <tr><td>CURRENT</td><td><a href='/checks/current.html'>/checks/current.html</a></td><td><a href='/checks/current.json'>/checks/current.json</a></td><td><a href='/checks/current.csv'>/checks/current.csv</a></td></tr>
        <tr><td>HISTORY</td><td><a href='/checks/history.html'>/checks/history.html</a></td><td><a href='/checks/history.json'>/checks/history.json</a></td><td><a href='/checks/history.csv'>/checks/history.csv</a></td></tr>
`

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexPage))
}
