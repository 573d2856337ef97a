package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/vsinha/lineplan/pkg/application/dto"
	"github.com/vsinha/lineplan/pkg/application/services/capacity"
	"github.com/vsinha/lineplan/pkg/domain/entities"
)

// Scheduler is the planning surface exposed over HTTP
type Scheduler interface {
	Schedule(ctx context.Context, intent dto.ScheduleIntent) (*dto.ScheduleResult, error)
	ScheduleBatch(ctx context.Context, intent dto.BatchIntent) (*dto.ScheduleResult, error)
	Unschedule(ctx context.Context, orderID entities.OrderID) (*dto.ScheduleResult, error)
	Split(ctx context.Context, orderID entities.OrderID, firstQuantity entities.Quantity) (*dto.SplitResult, error)
	Capacity(ctx context.Context, lineID entities.LineID, from, to time.Time) ([]capacity.DayLoad, error)
	GetOrder(ctx context.Context, id entities.OrderID) (*entities.Order, error)
}

// Options configures the router
type Options struct {
	// RateLimit is the sustained requests per second; zero disables limiting
	RateLimit float64
	Burst     int
}

// NewRouter builds the /api/v1 routes over scheduler
func NewRouter(scheduler Scheduler, logger *slog.Logger, opts Options) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "lineplan"})
	})

	v1 := r.Group("/api/v1")
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		v1.Use(rateLimit(rate.NewLimiter(rate.Limit(opts.RateLimit), burst)))
	}

	controller := NewScheduleController(scheduler, logger)
	v1.POST("/schedule", controller.Schedule)
	v1.POST("/schedule/batch", controller.ScheduleBatch)

	orders := v1.Group("/orders")
	{
		orders.GET("/:id", controller.GetOrder)
		orders.POST("/:id/unschedule", controller.Unschedule)
		orders.POST("/:id/split", controller.Split)
	}
	v1.GET("/lines/:id/capacity", controller.Capacity)

	return r
}

// Serve runs handler on addr until ctx is cancelled, then drains in-flight
// requests for up to ten seconds
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	logger.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info("http request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start))
	}
}

func rateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
				"code":  "rate_limited",
			})
			return
		}
		c.Next()
	}
}
