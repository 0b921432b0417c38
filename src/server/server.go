package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	app "imghost/src/app"
	cfg "imghost/src/configuration"
)

const shutdownTimeout = 10 * time.Second

// NewRouter registers every route on a fresh gin engine.
func NewRouter(config *cfg.Properties, images *app.ImageService, log logrus.FieldLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))
	if c, ok := corsConfig(config.Server.AllowOrigins); ok {
		router.Use(cors.New(c))
	}
	router.SetHTMLTemplate(loadTemplates())

	handler := NewHandler(images, config.Server.Name)
	imageHandler := NewImageHandler(images, config.Upload.MaxBytes, log)

	// Register Routes
	router.GET("/", handler.Gallery)
	router.GET("/health", handler.GetHealth)
	router.POST("/upload", imageHandler.PostImage)
	router.GET("/images", imageHandler.GetImageList)
	router.DELETE("/images/:id", imageHandler.DeleteImage)
	router.DELETE("/images", imageHandler.DeleteImage)

	if config.Server.Pprof {
		pprof.Register(router)
	}

	router.NoRoute(func(ctx *gin.Context) { ctx.String(http.StatusNotFound, "Not found") })
	return router
}

func corsConfig(origins []string) (cors.Config, bool) {
	if len(origins) == 0 {
		return cors.Config{}, false
	}
	c := cors.Config{
		AllowMethods:  []string{"GET", "HEAD", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Cache-Control"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, origin := range origins {
		if origin == "*" {
			c.AllowAllOrigins = true
			return c, true
		}
	}
	c.AllowOrigins = origins
	return c, true
}

// RunServer serves until ctx is cancelled, then drains in-flight requests.
func RunServer(ctx context.Context, config *cfg.Properties, log *logrus.Logger) error {
	if log.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	images, closeStores, err := app.NewImageServiceFromConfig(ctx, config, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStores(); err != nil {
			log.WithError(err).Warn("closing metadata store")
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", config.Server.Port),
		Handler:      NewRouter(config, images, log),
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
