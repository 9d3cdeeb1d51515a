package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/jwtauth/v5"

	"codequest/internal/api/handler"
	"codequest/internal/app/service"
	"codequest/internal/common/security"
)

func NewRouter(submissionService *service.SubmissionService, appEnv string) http.Handler {
	r := chi.NewRouter()

	logger := httplog.NewLogger("codequest", httplog.Options{
		LogLevel:         slog.LevelInfo,
		JSON:             appEnv == "production",
		Concise:          true,
		MessageFieldName: "message",
		Tags:             map[string]string{"env": appEnv},
		QuietDownRoutes:  []string{"/health"},
		QuietDownPeriod:  time.Minute,
	})

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Looks for "Authorization: Bearer T"; routes that need a caller add
	// middleware.Authenticator.
	r.Use(jwtauth.Verifier(security.TokenAuth))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Route("/languages", handler.NewLanguageHandler(submissionService).RegisterRoutes)
		v1.Route("/submissions", handler.NewSubmissionHandler(submissionService).RegisterRoutes)
	})

	return r
}
