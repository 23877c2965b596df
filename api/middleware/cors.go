package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

var defaultCORSOrigins = []string{
	"http://localhost:5173", // local dev
	"https://casier.app",
	"https://www.casier.app",
}

// CORS returns middleware that applies the API's allowed origin policy.
// The configured frontend URL is appended when it is not already covered.
func CORS(frontendURL string) func(http.Handler) http.Handler {
	origins := defaultCORSOrigins
	frontendURL = strings.TrimSuffix(strings.TrimSpace(frontendURL), "/")
	if frontendURL != "" && !contains(origins, frontendURL) {
		origins = append(append([]string{}, origins...), frontendURL)
	}

	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
