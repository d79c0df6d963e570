// Package adminapi exposes HTTP introspection and administration routes
// over chi: queue depth, FoundMessage lookups, a JWT-guarded admin route,
// and the Prometheus /metrics endpoint, mounted the way the platform
// services mount their own control-plane routers.
package adminapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.relayqueue.dev/internal/mqueue"
)

// Config configures the admin router.
type Config struct {
	CORSOrigins []string
	JWTSecret   []byte
}

// NewRouter builds the chi router: health, metrics, and JWT-guarded queue
// introspection routes.
func NewRouter(cfg Config) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/q/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireJWT(cfg.JWTSecret))
		r.Get("/queues/{id}/depth", handleQueueDepth)
		r.Get("/messages/{queue}/{handlerSeq}/{postSeq}/found", handleFoundMessage)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// requireJWT validates a Bearer token against secret using HS256, the
// simplest viable scheme for a single-process admin surface; issuing and
// rotating tokens is left to whatever auth system fronts this service.
func requireJWT(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if len(raw) <= len(prefix) || raw[:len(prefix)] != prefix {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			token := raw[len(prefix):]

			_, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenSignatureInvalid
				}
				return secret, nil
			})
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleQueueDepth(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid queue id", http.StatusBadRequest)
		return
	}

	ready, timers, ok := mqueue.QueueDepth(mqueue.QueueID(id))
	if !ok {
		http.Error(w, "queue not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"ready": ready, "timers": timers})
}

func handleFoundMessage(w http.ResponseWriter, r *http.Request) {
	queue, err := strconv.ParseUint(chi.URLParam(r, "queue"), 10, 64)
	if err != nil {
		http.Error(w, "invalid queue id", http.StatusBadRequest)
		return
	}
	handlerSeq, err := strconv.ParseUint(chi.URLParam(r, "handlerSeq"), 10, 32)
	if err != nil {
		http.Error(w, "invalid handler seq", http.StatusBadRequest)
		return
	}
	postSeq, err := strconv.ParseUint(chi.URLParam(r, "postSeq"), 10, 32)
	if err != nil {
		http.Error(w, "invalid post seq", http.StatusBadRequest)
		return
	}

	post := mqueue.PostID{
		Handler: mqueue.HandlerID{Queue: mqueue.QueueID(queue), Seq: uint32(handlerSeq)},
		Seq:     uint32(postSeq),
	}
	writeJSON(w, http.StatusOK, map[string]bool{"found": mqueue.FoundMessage(post)})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
