package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RemoteStore talks to a profile service over JSON/HTTP.
type RemoteStore struct {
	baseURL    string
	apiKey     string
	logger     zerolog.Logger
	httpClient *http.Client
}

// NewRemoteStore creates a client for baseURL. apiKey may be empty.
func NewRemoteStore(baseURL, apiKey string, logger zerolog.Logger) *RemoteStore {
	return &RemoteStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		logger:  logger.With().Str("component", "profile").Logger(),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Available checks if the service answers its health endpoint.
func (s *RemoteStore) Available(ctx context.Context) bool {
	req, err := s.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// WaitForReady polls the service every interval until it responds or ctx
// expires. The profile is optional, so callers continue either way.
func (s *RemoteStore) WaitForReady(ctx context.Context, interval time.Duration) bool {
	if s.Available(ctx) {
		return true
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if s.Available(ctx) {
				s.logger.Info().Str("url", s.baseURL).Msg("profile service ready")
				return true
			}
		}
	}
}

// Fetch loads the profile.
func (s *RemoteStore) Fetch(ctx context.Context) (UserData, error) {
	var data UserData
	if err := s.do(ctx, http.MethodGet, "/profile", nil, &data); err != nil {
		return UserData{}, err
	}
	return data, nil
}

func (s *RemoteStore) SyncPlaylists(ctx context.Context, playlists []Playlist) error {
	if playlists == nil {
		playlists = []Playlist{}
	}
	return s.do(ctx, http.MethodPut, "/profile/playlists", playlists, nil)
}

func (s *RemoteStore) SyncFavorites(ctx context.Context, favorites []string) error {
	if favorites == nil {
		favorites = []string{}
	}
	return s.do(ctx, http.MethodPut, "/profile/favorites", favorites, nil)
}

func (s *RemoteStore) SyncGestures(ctx context.Context, gestures map[string]string) error {
	return s.do(ctx, http.MethodPut, "/profile/gestures", gestures, nil)
}

func (s *RemoteStore) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	return req, nil
}

func (s *RemoteStore) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := s.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("profile %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
