package services

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StartServer starts the HTTP server in the background
func StartServer(r *gin.Engine, port string, log *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}()

	log.Info("server started", zap.String("port", port))
	return srv
}
