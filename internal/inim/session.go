package inim

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// tokenExpiryMargin is how close to expiry a token is still considered usable.
// The nominal lifetime is 24h but the client clock is never trusted alone; a
// rejection inside the margin still triggers a refresh.
const tokenExpiryMargin = time.Minute

const defaultTokenTTL = 86400 // seconds

// authorized executes op with a valid bearer token, logging in first when
// needed. If op reports a token rejection despite the token appearing valid
// (clock skew, server-side early expiry), the token is refreshed and op is
// retried exactly once.
func (c *Client) authorized(ctx context.Context, op func(ctx context.Context, token string) error) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	err = op(ctx, token)
	if err == nil || !IsAuth(err) {
		return err
	}

	token, err = c.refreshToken(ctx, token)
	if err != nil {
		return err
	}

	return op(ctx, token)
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token, expiry := c.token, c.expiry
	c.mu.Unlock()

	if token != "" && time.Until(expiry) > tokenExpiryMargin {
		return token, nil
	}

	return c.refreshToken(ctx, token)
}

// refreshToken performs a single-flight login. stale is the token the caller
// observed as unusable; if a concurrent flight already replaced it, the new
// token is reused without another network call. All callers queued behind one
// flight observe the same token or the same failure.
func (c *Client) refreshToken(ctx context.Context, stale string) (string, error) {
	v, err, _ := c.group.Do("login", func() (interface{}, error) {
		c.mu.Lock()
		current, expiry := c.token, c.expiry
		c.mu.Unlock()

		if current != "" && current != stale && time.Until(expiry) > tokenExpiryMargin {
			return current, nil
		}

		return c.login(ctx)
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

func (c *Client) login(ctx context.Context) (string, error) {
	clientInfo, _ := json.Marshal(map[string]string{
		"name":     clientName,
		"version":  "1.0.0",
		"device":   clientName,
		"brand":    clientName,
		"platform": "linux",
	})

	req := request{
		Method:   methodRegisterClient,
		ClientID: "",
		Params: loginParams{
			Username:   c.email,
			Password:   c.password,
			ClientID:   c.clientID,
			ClientName: clientName,
			ClientInfo: string(clientInfo),
			Role:       "1",
			Brand:      "0",
		},
	}

	data, err := c.call(ctx, req)
	if err != nil {
		return "", asLoginError(err)
	}

	var login loginData
	if err := json.Unmarshal(data, &login); err != nil {
		return "", wrapError(KindServer, "decode login response", err)
	}
	if login.Token == "" {
		return "", newError(KindInvalidCredentials, 0, "no token received")
	}

	ttl := login.TTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	c.mu.Lock()
	c.token = login.Token
	c.expiry = time.Now().Add(time.Duration(ttl) * time.Second)
	c.mu.Unlock()

	c.log.Info("Authenticated with INIM Cloud (token valid %ds)", ttl)

	return login.Token, nil
}

// asLoginError remaps call errors for the login path: an envelope-level
// rejection of the credentials is terminal, while transport and HTTP-level
// failures keep their retryable classification.
func asLoginError(err error) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}

	switch e.Kind {
	case KindNetwork, KindRateLimit:
		return err
	case KindServer:
		if e.Status == 0 {
			return err
		}
	}

	return &Error{Kind: KindInvalidCredentials, Status: e.Status, Msg: e.Msg}
}

// Invalidate drops the current token so the next call performs a fresh login.
// The boundary uses this after re-supplying credentials.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiry = time.Time{}
	c.mu.Unlock()
}
