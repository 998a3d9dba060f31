// Package httpapi exposes the pipeline over HTTP.
package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sachinfortude/RAMP-UP/internal/auth"
	"github.com/sachinfortude/RAMP-UP/internal/httpmiddleware"
	"github.com/sachinfortude/RAMP-UP/internal/pipeline"
	"github.com/sachinfortude/RAMP-UP/internal/queue"
	"github.com/sachinfortude/RAMP-UP/internal/student"
)

// Students is the record service behind the CRUD routes.
type Students interface {
	Create(ctx context.Context, in student.Input) (student.Record, error)
	List(ctx context.Context, page, limit int) (student.Page, error)
	Get(ctx context.Context, id string) (student.Record, error)
	Update(ctx context.Context, id string, in student.Input) (student.Record, error)
	Delete(ctx context.Context, id string) (student.Record, error)
	ForCourse(ctx context.Context, courseID string) ([]student.Record, error)
}

// Jobs starts import and filter jobs.
type Jobs interface {
	SaveUpload(src io.Reader, originalName string) (string, error)
	StartImport(ctx context.Context, filePath string) (queue.Handle, error)
	StartFilter(ctx context.Context, minAge, maxAge int) (queue.Handle, error)
	DownloadPath(filePath string) (string, error)
}

// JobStatus reports the state of a job.
type JobStatus interface {
	Status(ctx context.Context, id string) (queue.Status, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps are the components the router serves. Events and Metrics may be nil.
type Deps struct {
	Students Students
	Jobs     Jobs
	Status   JobStatus
	Events   http.Handler
	Metrics  http.Handler
	Health   map[string]HealthCheck

	// Issuer enables operator auth on /v1 and /ws when non-nil.
	Issuer   *auth.Issuer
	Operator auth.Operator

	RateLimitPerMin int
	MaxUploadBytes  int64
	CORSOrigins     []string
	Log             zerolog.Logger
}

var (
	_ Jobs      = (*pipeline.Intake)(nil)
	_ Students  = (*student.Service)(nil)
	_ JobStatus = (*queue.Queue)(nil)
)

type handler struct {
	Deps
}

// NewRouter wires every route onto a new gin engine.
func NewRouter(d Deps) *gin.Engine {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 20 << 20
	}
	h := &handler{Deps: d}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(d.Log, "/healthz", "/metrics"))
	r.Use(httpmiddleware.CORS(d.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/healthz", h.health)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	limiter := httpmiddleware.NewRateLimiter(d.RateLimitPerMin)
	v1 := r.Group("/v1", limiter.GinMiddleware())
	if d.Issuer != nil {
		v1.POST("/auth/token", h.issueToken)
		v1.POST("/auth/refresh", h.refreshToken)
	}

	api := v1.Group("")
	if d.Issuer != nil {
		api.Use(auth.OperatorAuth(d.Issuer))
	}
	api.POST("/students/import", h.startImport)
	api.POST("/students/filter", h.startFilter)
	api.GET("/students/download", h.download)
	api.GET("/jobs/:id", h.jobStatus)

	api.POST("/students", h.createStudent)
	api.GET("/students", h.listStudents)
	api.GET("/students/:id", h.getStudent)
	api.PUT("/students/:id", h.updateStudent)
	api.DELETE("/students/:id", h.deleteStudent)
	api.GET("/courses/:courseId/students", h.courseStudents)

	if d.Events != nil {
		ws := r.Group("/ws")
		if d.Issuer != nil {
			ws.Use(auth.OperatorAuth(d.Issuer))
		}
		ws.GET("", gin.WrapH(d.Events))
	}
	return r
}

func (h *handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.Health {
		ok := check(ctx)
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}
