package api

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type Routes struct {
	WebSocket      http.Handler
	Upload         *UploadHandler
	Read           *ReadHandler
	UploadDir      string
	AllowedOrigins []string
}

// NewRouter mounts every endpoint of the relay on one gin engine.
func NewRouter(log *slog.Logger, routes Routes) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logging(log))
	engine.Use(cors(routes.AllowedOrigins))

	engine.GET("/ws", gin.WrapH(routes.WebSocket))
	engine.POST("/upload", routes.Upload.Upload)
	engine.GET("/uploads/*filepath", serveUploads(routes.UploadDir))
	routes.Read.Register(engine.Group("/api"))
	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "chat relay is running"})
	})
	return engine
}

// serveUploads serves stored files only, directories answer 404.
func serveUploads(dir string) gin.HandlerFunc {
	fs := http.Dir(dir)
	return func(c *gin.Context) {
		name := c.Param("filepath")
		if name == "" || strings.HasSuffix(name, "/") {
			c.Status(http.StatusNotFound)
			return
		}
		c.FileFromFS(name, fs)
	}
}

func cors(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case slices.Contains(allowed, origin):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		case len(allowed) == 0 || slices.Contains(allowed, "*"):
			c.Header("Access-Control-Allow-Origin", "*")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func logging(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/ws" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
