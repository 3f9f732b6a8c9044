package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"

	"github.com/remus-chat/remus-node/models"
	"github.com/remus-chat/remus-node/pkg"
	"github.com/remus-chat/remus-node/pkg/cache"
	"github.com/remus-chat/remus-node/repository"
)

const (
	// tokenCacheTTL keeps verdicts hot across the burst of requests a
	// client fires on load, without holding revoked tokens for long.
	tokenCacheTTL   = 5 * time.Second
	tokenCacheSweep = 60 * time.Second
)

// IdentityService resolves bearer tokens against the external identity
// authority. The node holds no credentials: every token is either in
// the short-lived cache or verified remotely.
type IdentityService interface {
	Verify(ctx context.Context, token string) (*models.AuthUser, error)
}

type identityService struct {
	verifyURL   string
	client      *httpclient.Client
	cache       *cache.TTLCache[string, models.AuthUser]
	profileRepo repository.ProfileRepository
}

// NewIdentityService creates the resolver. A loopback authority gets a
// tight timeout and no retries; a remote one gets a longer timeout with
// constant-backoff retries.
func NewIdentityService(mainBackendURL string, profileRepo repository.ProfileRepository) IdentityService {
	var client *httpclient.Client
	if isLoopbackURL(mainBackendURL) {
		client = httpclient.NewClient(
			httpclient.WithHTTPTimeout(1500 * time.Millisecond),
		)
	} else {
		client = httpclient.NewClient(
			httpclient.WithHTTPTimeout(5*time.Second),
			httpclient.WithRetryCount(2),
			httpclient.WithRetrier(heimdall.NewRetrier(heimdall.NewConstantBackoff(500*time.Millisecond, 100*time.Millisecond))),
		)
	}

	return &identityService{
		verifyURL:   mainBackendURL + "/api/auth/verify",
		client:      client,
		cache:       cache.New[string, models.AuthUser](tokenCacheTTL, tokenCacheSweep),
		profileRepo: profileRepo,
	}
}

// verifyResponse is the authority's envelope.
type verifyResponse struct {
	Success bool `json:"success"`
	Data    struct {
		User models.AuthUser `json:"user"`
	} `json:"data"`
	Error string `json:"error"`
}

func (s *identityService) Verify(ctx context.Context, token string) (*models.AuthUser, error) {
	if token == "" {
		return nil, pkg.ErrUnauthorized
	}

	if user, ok := s.cache.Get(token); ok {
		return &user, nil
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Get(s.verifyURL, headers)
	if err != nil {
		log.Printf("[identity] authority unreachable: %v", err)
		return nil, fmt.Errorf("%w: %v", pkg.ErrAuthorityUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read verify response", pkg.ErrAuthorityUnavailable)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, pkg.ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: authority returned %d", pkg.ErrAuthorityUnavailable, resp.StatusCode)
	}

	var parsed verifyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: unparseable verify response", pkg.ErrAuthorityUnavailable)
	}
	user := parsed.Data.User
	if user.ID == "" {
		// Some authority versions return the user object bare.
		if err := json.Unmarshal(body, &user); err != nil || user.ID == "" {
			return nil, pkg.ErrUnauthorized
		}
	}

	// First authenticated touch creates the node-local profile; later
	// touches refresh username and last-seen.
	profile := &models.Profile{ID: user.ID, Username: user.Username}
	if user.Email != "" {
		profile.Email = &user.Email
	}
	if err := s.profileRepo.Upsert(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to record profile: %w", err)
	}

	s.cache.Set(token, user)
	return &user, nil
}

func isLoopbackURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
