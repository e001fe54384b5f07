package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-broker/broker"
	"github.com/rs/zerolog"
)

const contentTypeJSON = "application/json; charset=utf-8"

// BrokerHandler reads the action payload and hands it to the broker. The
// body is capped at the configured size.
func (s *Server) BrokerHandler(d broker.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSONError(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("failed to read request body")
			writeJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		resp := broker.Handle(r.Context(), d, payload)
		writeJSON(w, resp.Status, resp.Body)
	}
}

// PreflightHandler answers CORS preflight requests; headers come from
// CorsMiddleware.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, struct{}{})
	}
}

type healthResponse struct {
	Status  string   `json:"status"`
	Brokers []string `json:"brokers"`
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names := make([]string, 0, len(s.brokers))
		for _, route := range s.routes {
			if name, ok := strings.CutPrefix(route, "POST /"); ok {
				names = append(names, name)
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Brokers: names})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, broker.ErrorBody{Error: message})
}
