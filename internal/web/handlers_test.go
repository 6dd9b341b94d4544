package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/shaynemeyer/radio-calico/internal/ratings"
)

// setupTestServer builds a server over an in-memory SQLite store.
func setupTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := ratings.OpenSQLite(context.Background(), ":memory:", log.New(io.Discard))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv, err := NewServer(ServerConfig{
		Store:  store,
		Logger: log.New(io.Discard),
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func postJSON(t *testing.T, srv *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func getJSON(t *testing.T, srv *Server, path string, out any) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decoding %s response %q: %v", path, rec.Body.String(), err)
		}
	}
	return rec
}

func TestRateSong(t *testing.T) {
	t.Run("accepts thumbs up", func(t *testing.T) {
		srv := setupTestServer(t)

		rec := postJSON(t, srv, "/api/songs/rate", map[string]any{
			"songId": "test_song_1", "rating": 1, "userSession": "user_test_123",
		})

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		var resp struct {
			Success bool   `json:"success"`
			SongID  string `json:"songId"`
			Rating  int    `json:"rating"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if !resp.Success || resp.SongID != "test_song_1" || resp.Rating != 1 {
			t.Errorf("response = %+v", resp)
		}
	})

	t.Run("rejects out-of-range rating", func(t *testing.T) {
		srv := setupTestServer(t)

		rec := postJSON(t, srv, "/api/songs/rate", map[string]any{
			"songId": "s1", "rating": 5, "userSession": "u1",
		})

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}

		var resp struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if resp.Error != "Rating must be 1 (thumbs up) or -1 (thumbs down)" {
			t.Errorf("error = %q", resp.Error)
		}
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		srv := setupTestServer(t)

		for _, body := range []map[string]any{
			{"rating": 1, "userSession": "u1"},
			{"songId": "s1", "userSession": "u1"},
			{"songId": "s1", "rating": 1},
		} {
			rec := postJSON(t, srv, "/api/songs/rate", body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("body %v: status = %d, want 400", body, rec.Code)
				continue
			}

			var resp struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if resp.Error != "songId, rating, and userSession are required" {
				t.Errorf("body %v: error = %q", body, resp.Error)
			}
		}
	})
}

func TestSongRatingsAggregate(t *testing.T) {
	srv := setupTestServer(t)

	for _, sub := range []struct {
		session string
		rating  int
	}{
		{"userA", 1},
		{"userB", 1},
		{"userC", -1},
	} {
		rec := postJSON(t, srv, "/api/songs/rate", map[string]any{
			"songId": "s1", "rating": sub.rating, "userSession": sub.session,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("submit %s: status = %d", sub.session, rec.Code)
		}
	}

	var resp struct {
		SongID     string `json:"songId"`
		ThumbsUp   int    `json:"thumbs_up"`
		ThumbsDown int    `json:"thumbs_down"`
		Total      int    `json:"total_ratings"`
	}
	rec := getJSON(t, srv, "/api/songs/s1/ratings", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.ThumbsUp != 2 || resp.ThumbsDown != 1 || resp.Total != 3 {
		t.Errorf("aggregate = %+v, want {2 1 3}", resp)
	}
}

func TestSongRatingsUnvoted(t *testing.T) {
	srv := setupTestServer(t)

	var resp struct {
		ThumbsUp   int `json:"thumbs_up"`
		ThumbsDown int `json:"thumbs_down"`
		Total      int `json:"total_ratings"`
	}
	rec := getJSON(t, srv, "/api/songs/never_rated/ratings", &resp)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for unvoted track", rec.Code)
	}
	if resp.ThumbsUp != 0 || resp.ThumbsDown != 0 || resp.Total != 0 {
		t.Errorf("aggregate = %+v, want zeros", resp)
	}
}

func TestUserRating(t *testing.T) {
	t.Run("last vote wins", func(t *testing.T) {
		srv := setupTestServer(t)

		for _, rating := range []int{1, -1} {
			rec := postJSON(t, srv, "/api/songs/rate", map[string]any{
				"songId": "s2", "rating": rating, "userSession": "u1",
			})
			if rec.Code != http.StatusOK {
				t.Fatalf("submit rating %d: status = %d", rating, rec.Code)
			}
		}

		var resp struct {
			SongID      string `json:"songId"`
			UserSession string `json:"userSession"`
			Rating      *int   `json:"rating"`
		}
		rec := getJSON(t, srv, "/api/songs/s2/user-rating/u1", &resp)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if resp.Rating == nil || *resp.Rating != -1 {
			t.Errorf("rating = %v, want -1", resp.Rating)
		}
	})

	t.Run("absent vote is null", func(t *testing.T) {
		srv := setupTestServer(t)

		var resp struct {
			Rating *int `json:"rating"`
		}
		rec := getJSON(t, srv, "/api/songs/s9/user-rating/stranger", &resp)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 for absent vote", rec.Code)
		}
		if resp.Rating != nil {
			t.Errorf("rating = %v, want null", *resp.Rating)
		}
	})
}

func TestUsersEndpoints(t *testing.T) {
	srv := setupTestServer(t)

	rec := postJSON(t, srv, "/api/users", map[string]any{
		"name": "Ada", "email": "ada@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create user: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, srv, "/api/users", map[string]any{"name": "NoEmail"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("create user without email: status = %d, want 400", rec.Code)
	}

	var users []struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	rec = getJSON(t, srv, "/api/users", &users)
	if rec.Code != http.StatusOK {
		t.Fatalf("list users: status = %d", rec.Code)
	}
	if len(users) != 1 || users[0].Name != "Ada" {
		t.Errorf("users = %+v", users)
	}
}

func TestHealth(t *testing.T) {
	srv := setupTestServer(t)

	var resp struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
	rec := getJSON(t, srv, "/health", &resp)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.Status != "healthy" || resp.Database != "connected" {
		t.Errorf("health = %+v", resp)
	}
}

func TestHealthDegraded(t *testing.T) {
	store, err := ratings.OpenSQLite(context.Background(), ":memory:", log.New(io.Discard))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}

	srv, err := NewServer(ServerConfig{Store: store, Logger: log.New(io.Discard)})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	// Take the backend away: health must degrade, not crash.
	store.Close()

	var resp struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
	rec := getJSON(t, srv, "/health", &resp)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if resp.Status != "unhealthy" || resp.Database != "disconnected" {
		t.Errorf("health = %+v", resp)
	}
}
