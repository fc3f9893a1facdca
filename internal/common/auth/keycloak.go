// internal/common/auth/keycloak.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"portal-workers/internal/common/errors"
	"portal-workers/internal/models"
)

// KeycloakClient resolves applicant identities from Keycloak.
type KeycloakClient struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// User represents a user in Keycloak.
type User struct {
	ID        string `json:"id,omitempty"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	Enabled   bool   `json:"enabled"`
}

// Identity maps a Keycloak user onto the applicant identity.
func (u User) Identity() *models.Identity {
	return &models.Identity{
		UID:         u.ID,
		Email:       u.Email,
		DisplayName: strings.TrimSpace(u.FirstName + " " + u.LastName),
	}
}

// TokenResponse holds the response from Keycloak's token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// userInfo is the OpenID Connect userinfo payload.
type userInfo struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func NewKeycloakClient(baseURL, realm, clientID, clientSecret string) *KeycloakClient {
	return &KeycloakClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// token returns a cached client-credentials token, fetching a new one
// shortly before the cached one expires.
func (k *KeycloakClient) token(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.accessToken != "" && time.Now().Add(10*time.Second).Before(k.tokenExpiry) {
		return k.accessToken, nil
	}

	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("keycloak token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	k.accessToken = tokenResp.AccessToken
	k.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return k.accessToken, nil
}

// GetUser looks up a user by id with the service account.
func (k *KeycloakClient) GetUser(ctx context.Context, userID string) (*models.Identity, error) {
	token, err := k.token(ctx)
	if err != nil {
		return nil, errors.NewIdentityLookupFailedError(userID, err)
	}

	userURL := fmt.Sprintf("%s/admin/realms/%s/users/%s", k.baseURL, k.realm, url.PathEscape(userID))
	var user User
	if err := k.getJSON(ctx, userURL, token, &user); err != nil {
		return nil, k.lookupError(userID, err)
	}
	if user.ID == "" {
		user.ID = userID
	}
	return user.Identity(), nil
}

// UserInfo resolves the identity behind an applicant's own access token.
func (k *KeycloakClient) UserInfo(ctx context.Context, accessToken string) (*models.Identity, error) {
	infoURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/userinfo", k.baseURL, k.realm)

	var info userInfo
	if err := k.getJSON(ctx, infoURL, accessToken, &info); err != nil {
		return nil, k.lookupError("", err)
	}
	if info.Sub == "" {
		return nil, errors.NewIdentityLookupFailedError("", fmt.Errorf("userinfo response has no subject"))
	}
	return &models.Identity{UID: info.Sub, Email: info.Email, DisplayName: info.Name}, nil
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("keycloak responded %d: %s", e.status, e.body)
}

func (k *KeycloakClient) getJSON(ctx context.Context, target, bearer string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &statusError{status: resp.StatusCode, body: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// lookupError marks client errors (404, 401, ...) as permanent.
func (k *KeycloakClient) lookupError(uid string, err error) error {
	stdErr := errors.NewIdentityLookupFailedError(uid, err)
	if se, ok := err.(*statusError); ok {
		stdErr.Retryable = k.isTransientHTTPError(se.status)
		stdErr.WithMetadata("httpStatus", se.status)
	}
	return stdErr
}

// isTransientHTTPError returns true if the HTTP status code indicates a potentially transient error.
func (k *KeycloakClient) isTransientHTTPError(statusCode int) bool {
	switch statusCode {
	case http.StatusInternalServerError, // 500
		http.StatusBadGateway,         // 502
		http.StatusServiceUnavailable, // 503
		http.StatusGatewayTimeout,     // 504
		http.StatusTooManyRequests:    // 429
		return true
	default:
		return false
	}
}
