package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stockkanban/client-go/pkg/domain"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// registerInput carries the pre-flight validation rules for Register.
type registerInput struct {
	Username        string `validate:"required,min=3,max=30"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required,min=8"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type responseMeta struct {
	Timestamp string `json:"timestamp"`
	TraceID   string `json:"traceId"`
	Version   string `json:"version"`
}

type authResponse struct {
	Success bool `json:"success"`
	Data    struct {
		User         userPayload `json:"user"`
		Token        string      `json:"token"`
		RefreshToken string      `json:"refreshToken"`
	} `json:"data"`
	Meta responseMeta `json:"meta"`
}

type refreshResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	} `json:"data"`
}

type errorEnvelope struct {
	Error domain.APIError `json:"error"`
}

// postJSON issues a POST to the auth API and decodes the response into out.
// Non-2xx responses come back as *domain.APIError with Status set.
func (c *Coordinator) postJSON(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// decodeAPIError extracts the error envelope from a non-2xx response. A body
// that cannot be parsed still yields an APIError carrying the status code.
func decodeAPIError(resp *http.Response) *domain.APIError {
	var env errorEnvelope
	_ = json.NewDecoder(resp.Body).Decode(&env)

	apiErr := env.Error
	apiErr.Status = resp.StatusCode
	return &apiErr
}
