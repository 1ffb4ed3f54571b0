// Package httpapi exposes provisioning and upload authorization over a JSON
// HTTP API built on gin.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophbucket/internal/logging"
	"github.com/dmitrijs2005/gophbucket/internal/server/accesscheck"
	"github.com/dmitrijs2005/gophbucket/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Provisioner interface {
	Provision(ctx context.Context, publicID string) bool
}

type Issuer interface {
	IssueUploadAuthorizations(ctx context.Context, publicID string, objectNames []string, ttl time.Duration) (*services.IssueResult, error)
}

type DetailsReader interface {
	Details(ctx context.Context, publicID string) (*services.IdentityDetails, error)
}

// Deps are the collaborators and knobs the router is built from.
type Deps struct {
	Provisioner Provisioner
	Issuer      Issuer
	Details     DetailsReader
	Checker     accesscheck.Checker
	Gatherer    prometheus.Gatherer
	Log         logging.Logger

	ProvisionAccessLevel int
	UploadAccessLevel    int
	RateLimitPerMinute   int
	UploadURLTTL         time.Duration
}

// statusPerHour bounds the unauthenticated status probe.
const statusPerHour = 100

// NewRouter wires middleware and routes. It fails only if an embedded JSON
// schema does not compile.
func NewRouter(d Deps) (*gin.Engine, error) {
	sc, err := loadSchemas()
	if err != nil {
		return nil, err
	}
	h := &handler{deps: d, schemas: sc}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(recovery(d.Log), requestLogger(d.Log))
	r.NoRoute(func(c *gin.Context) { message(c, http.StatusNotFound, "Resource not found") })
	r.NoMethod(func(c *gin.Context) { message(c, http.StatusMethodNotAllowed, "Method not allowed") })

	// Each route keeps its own per-client budget.
	perMinute := func() gin.HandlerFunc { return rateLimit(newIPLimiter(d.RateLimitPerMinute, time.Minute)) }

	aws := r.Group("/aws")
	aws.GET("/status", rateLimit(newIPLimiter(statusPerHour, time.Hour)), h.status)
	aws.POST("/user",
		perMinute(), jsonOnly(), requireAccessLevel(d.Checker, d.ProvisionAccessLevel, d.Log),
		h.createUser)
	aws.GET("/user",
		perMinute(), requireAccessLevel(d.Checker, d.ProvisionAccessLevel, d.Log),
		h.getUser)
	aws.POST("/urls",
		perMinute(), jsonOnly(), requireAccessLevel(d.Checker, d.UploadAccessLevel, d.Log),
		h.uploadURLs)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	return r, nil
}
