package server

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/azaliaz/bookly/book-service/internal/config"
	"github.com/azaliaz/bookly/book-service/internal/domain/models"
	"github.com/azaliaz/bookly/book-service/internal/domain/policy"
	"github.com/azaliaz/bookly/book-service/internal/events"
	"github.com/azaliaz/bookly/book-service/internal/logger"
)

//go:generate mockgen -source=server.go -destination=./mocks/service_mock.go -package=mocks

const (
	headerRequestID    = "X-Request-ID"
	keyRequestID       = "request_id"
	shutdownTimeout    = 10 * time.Second
	publishTimeout     = 2 * time.Second
	readHeaderTimeout  = 5 * time.Second
	corsMaxAge         = 12 * time.Hour
	maxRequestBodySize = 1 << 20
)

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type Storage interface {
	GetBooks(ctx context.Context, filter models.BookFilter) ([]models.Book, error)
	GetBook(ctx context.Context, id int64) (models.Book, error)
	SaveBook(ctx context.Context, book models.NewBook) (models.Book, error)
	UpdateBooks(ctx context.Context, updates []models.BookUpdate) ([]models.Book, error)
	DeleteBook(ctx context.Context, id int64) error
	Close() error
}

type Server struct {
	serv    *http.Server
	Storage Storage
	Policy  *policy.Policy
	Events  events.Publisher
}

func New(cfg config.Config, stor Storage, pub events.Publisher) *Server {
	server := http.Server{
		Addr:              cfg.Addr,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return &Server{
		serv:    &server,
		Storage: stor,
		Policy:  policy.New(cfg.Policy),
		Events:  pub,
	}
}

func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), limitBody())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", headerRequestID},
		ExposeHeaders: []string{"Content-Length", headerRequestID},
		MaxAge:        corsMaxAge,
	}))
	router.GET("/health", func(ctx *gin.Context) { ctx.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	books := router.Group("/books")
	{
		books.GET("/", s.AllBooks)
		books.GET("/group_by_genre", s.BooksByGenre)
		books.GET("/:id", s.BookInfo)
		books.POST("/", s.AddBook)
		books.PATCH("/", s.UpdateBooks)
		books.DELETE("/:id", s.RemoveBook)
	}
	return router
}

func (s *Server) Run(_ context.Context) error {
	log := logger.Get()
	s.serv.Handler = s.Handler()

	log.Info().Str("host", s.serv.Addr).Msg("server started")
	if err := s.serv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ShutdownServer() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.serv.Shutdown(ctx)
}

// publish never fails the request; a broker outage only costs the event.
func (s *Server) publish(ctx *gin.Context, event events.Event) {
	if s.Events == nil {
		return
	}
	log := logger.Get()
	pubCtx, cancel := context.WithTimeout(ctx.Request.Context(), publishTimeout)
	defer cancel()
	if err := s.Events.Publish(pubCtx, event); err != nil {
		log.Warn().Err(err).Str("event", event.Type).Str(keyRequestID, ctx.GetString(keyRequestID)).Msg("publish event failed")
	}
}

func requestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		log := logger.Get()
		start := time.Now()

		reqID := ctx.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		ctx.Set(keyRequestID, reqID)
		ctx.Header(headerRequestID, reqID)

		ctx.Next()

		log.Info().
			Str(keyRequestID, reqID).
			Str("method", ctx.Request.Method).
			Str("path", ctx.Request.URL.Path).
			Int("status", ctx.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request handled")
	}
}

func limitBody() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxRequestBodySize)
		ctx.Next()
	}
}
