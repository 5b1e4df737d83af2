package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"DropFM/logger"

	"github.com/gorilla/mux"
)

// NewRouter 注册所有 API 路由
func NewRouter(h *APIHandler) *mux.Router {
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	// 用户认证
	router.HandleFunc("/api/login", h.LoginHandler).Methods(http.MethodPost)

	// 上传入口
	router.HandleFunc("/api/upload", h.AuthMiddleware(h.UploadHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/youtube", h.AuthMiddleware(h.YouTubeHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/spotify", h.AuthMiddleware(h.SpotifyHandler)).Methods(http.MethodPost)

	// 上传日志
	router.HandleFunc("/api/uploads", h.AuthMiddleware(h.ListUploadsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/uploads/{id:[0-9]+}", h.AuthMiddleware(h.GetUploadHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/uploads/{id:[0-9]+}/progress", h.AuthMiddleware(h.ProgressHandler)).Methods(http.MethodGet)

	// 管理员设置
	router.HandleFunc("/api/admin/settings/processor", h.AdminOnly(h.GetProcessorSettingHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/admin/settings/processor", h.AdminOnly(h.PutProcessorSettingHandler)).Methods(http.MethodPut)

	return router
}

// Run serves handler on addr until ctx is cancelled, then shuts down
// gracefully. Upload requests in flight get shutdownTimeout to finish.
func Run(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
