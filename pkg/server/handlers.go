package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/feedagg/pkg/feed"
	"github.com/Sternrassler/feedagg/pkg/source"
	"github.com/go-chi/chi/v5"
)

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	body := errorResponse{Message: message}
	if err != nil {
		body.Error = err.Error()
	}
	s.writeJSON(w, status, body)
}

// handleListPosts fetches one page and attaches each post's media. Owners
// are not resolved here; clients look them up via /api/v1/users/{id}.
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	cursor, err := s.parseCursor(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid pagination parameters", err)
		return
	}

	page, err := s.deps.Source.FetchPage(r.Context(), cursor)
	if err != nil {
		s.logger.Error().Err(err).Stringer("cursor", cursor).Msg("Error fetching posts with images")
		s.writeError(w, http.StatusInternalServerError, "Error fetching posts with images", err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.media.Enrich(r.Context(), page))
}

func (s *Server) handleListMedia(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid post id", err)
		return
	}

	items, err := s.deps.Source.FetchMedia(r.Context(), id)
	if err != nil {
		s.logger.Warn().Err(err).Int("record_id", id).Msg("Error fetching images")
		s.writeError(w, http.StatusBadGateway, "Error fetching images", err)
		return
	}

	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid user id", err)
		return
	}

	owner, err := s.deps.Source.FetchOwner(r.Context(), id)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, owner)
	case source.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, "User not found", nil)
	default:
		s.logger.Warn().Err(err).Int("owner_id", id).Msg("Error fetching user")
		s.writeError(w, http.StatusBadGateway, "Error fetching user", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Redis.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// parseCursor reads start and limit, applying the configured defaults.
func (s *Server) parseCursor(r *http.Request) (feed.Cursor, error) {
	cursor := feed.Cursor{Start: 0, Limit: s.config.DefaultLimit}
	q := r.URL.Query()

	if v := q.Get("start"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cursor, fmt.Errorf("start: invalid integer %q", v)
		}
		cursor.Start = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cursor, fmt.Errorf("limit: invalid integer %q", v)
		}
		cursor.Limit = n
	}
	if cursor.Limit > s.config.MaxLimit {
		return cursor, fmt.Errorf("limit: must be at most %d, got %d", s.config.MaxLimit, cursor.Limit)
	}
	if err := cursor.Validate(); err != nil {
		return cursor, err
	}
	return cursor, nil
}

var errInvalidID = errors.New("id must be a positive integer")

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}
