package auth

import (
	"context"
	"fmt"

	"github.com/stockkanban/client-go/pkg/domain"
	"github.com/stockkanban/client-go/pkg/token"
)

// Refresh exchanges the stored refresh token for a new token pair.
//
// Single-flight contract: concurrent callers join the one in-flight exchange
// and observe the same outcome; only one network call is made no matter how
// many callers arrive while it is pending. The flight runs detached from the
// first caller's context so a joiner is not failed by someone else's
// cancellation.
//
// A failed refresh is terminal: the session and persisted tokens are cleared
// and the caller is expected to force logout. Refreshes are never retried
// automatically.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	v, err, _ := c.sf.Do("refresh", func() (any, error) {
		return c.doRefresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Coordinator) doRefresh(ctx context.Context) (string, error) {
	refresh := c.store.RefreshToken()
	if refresh == "" {
		return "", domain.ErrNoRefreshToken
	}

	c.store.SetRefreshing(true)
	defer c.store.SetRefreshing(false)

	c.logEvent(domain.EventTokenRefresh, map[string]any{"action": "ATTEMPT"})

	var resp refreshResponse
	if err := c.postJSON(ctx, "/auth/refresh", refreshRequest{RefreshToken: refresh}, &resp); err != nil {
		return "", c.failRefresh(err)
	}

	claims, err := token.Decode(resp.Data.Token)
	if err != nil {
		return "", c.failRefresh(fmt.Errorf("server returned undecodable token: %w", err))
	}

	c.store.SetTokens(resp.Data.Token, resp.Data.RefreshToken, claims.Identity())
	if err := c.keystore.SaveTokens(resp.Data.Token, resp.Data.RefreshToken); err != nil {
		c.logger.Warn("failed to persist refreshed tokens", "error", err)
	}
	c.notifyTokens(resp.Data.Token)

	details := map[string]any{"action": "SUCCESS"}
	if exp, ok := token.ExpirationTime(resp.Data.Token); ok {
		details["newTokenExpiry"] = exp
	}
	c.logEvent(domain.EventTokenRefresh, details)

	return resp.Data.Token, nil
}

// failRefresh tears the session down and reports ErrRefreshFailed.
func (c *Coordinator) failRefresh(cause error) error {
	c.store.Clear()
	if err := c.keystore.ClearTokens(); err != nil {
		c.logger.Warn("failed to clear persisted tokens", "error", err)
	}
	c.notifyTokens("")

	c.logEvent(domain.EventTokenRefresh, map[string]any{
		"action": "FAILURE",
		"error":  cause.Error(),
	})
	return fmt.Errorf("%w: %v", domain.ErrRefreshFailed, cause)
}
