package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jmorganca/sinkcache/api"
	"github.com/jmorganca/sinkcache/envconfig"
	"github.com/jmorganca/sinkcache/kvcache"
	"github.com/jmorganca/sinkcache/runner"
	"github.com/jmorganca/sinkcache/sample"
	"github.com/jmorganca/sinkcache/version"
)

// Server is a minimal HTTP surface over the generation loop: one model, one
// sequence per request. Model management, batching and scheduling are out of
// scope here.
type Server struct {
	model    runner.Model
	defaults api.Config
}

func New(m runner.Model, defaults api.Config) *Server {
	return &Server{model: m, defaults: defaults}
}

func (s *Server) GenerateRoutes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/api/generate", s.GenerateHandler)
	r.GET("/api/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": version.Version})
	})

	return r
}

func (s *Server) GenerateHandler(c *gin.Context) {
	var req api.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(req.Prompt) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}

	cfg := s.defaults
	if req.Options != nil {
		if err := cfg.FromMap(req.Options); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	seq, err := runner.NewSequence(cfg)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, kvcache.ErrInvalidConfig) {
			status = http.StatusBadRequest
		}

		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}
	defer seq.Release()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 128
	}

	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sampler := sample.New(req.Temperature, req.TopK, seed)

	ctx := c.Request.Context()
	start := time.Now()

	var logits []float32
	for _, token := range req.Prompt {
		if logits, err = seq.Decode(ctx, s.model, token); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.Header("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(c.Writer)

	for i := 0; i < maxTokens; i++ {
		if ctx.Err() != nil {
			return
		}

		token := sampler.Sample(logits)

		resp := api.GenerateResponse{
			ID:        seq.ID(),
			CreatedAt: time.Now(),
			Token:     token,
		}

		if i == maxTokens-1 {
			resp.Done = true
			resp.EvalCount = maxTokens
			resp.EvalDuration = time.Since(start)
		}

		if err := enc.Encode(resp); err != nil {
			return
		}
		c.Writer.Flush()

		if resp.Done {
			break
		}

		if logits, err = seq.Decode(ctx, s.model, token); err != nil {
			slog.Error("decode failed mid-stream", "id", seq.ID(), "error", err)
			return
		}
	}
}

// Serve runs the HTTP API on ln until the listener closes.
func Serve(ln net.Listener, m runner.Model, defaults api.Config) error {
	if !envconfig.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := New(m, defaults)

	slog.Info("listening", "addr", ln.Addr())

	srv := &http.Server{Handler: s.GenerateRoutes()}
	return srv.Serve(ln)
}
