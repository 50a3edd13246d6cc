package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

const (
	RoleCustomer = "customer"
	RoleOperator = "operator"
)

// Identity is passed explicitly into every operation that needs it. Nothing
// in the engine reads caller identity from ambient state.
type Identity struct {
	UserID string
	Role   string
}

func (id Identity) IsOperator() bool {
	return id.Role == RoleOperator
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// HTTPVerifier introspects bearer tokens against the identity service.
type HTTPVerifier struct {
	baseURL string
	client  *http.Client
}

func NewHTTPVerifier(baseURL string, timeout time.Duration) *HTTPVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type introspectResponse struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/v1/introspect", nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return Identity{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Identity{}, ErrUnauthenticated
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return Identity{}, fmt.Errorf("identity http status %d: %s", resp.StatusCode, msg)
		}
		return Identity{}, fmt.Errorf("identity http status %d", resp.StatusCode)
	}

	var out introspectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Identity{}, err
	}
	if out.UserID == "" {
		return Identity{}, ErrUnauthenticated
	}
	role := out.Role
	if role == "" {
		role = RoleCustomer
	}
	return Identity{UserID: out.UserID, Role: role}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
