// Package inim speaks the INIM Cloud HTTP protocol: session and token
// lifecycle, the device snapshot fetch, and the mutating panel commands.
package inim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/daemonp/inim2mqtt/internal/log"
)

const (
	// DefaultBaseURL is the production INIM Cloud endpoint.
	DefaultBaseURL = "https://api.inimcloud.com/"

	defaultTimeout = 15 * time.Second

	clientName = "inim2mqtt"

	methodRegisterClient     = "RegisterClient"
	methodGetDevicesExtended = "GetDevicesExtended"
	methodActivateScenario   = "ActivateScenario"
	methodRequestPoll        = "RequestPoll"
	methodInsertZone         = "InsertZone"
	methodInsertAreas        = "InsertAreas"

	nodeHome = "inimhome"
	nameHome = "it.inim.inimutenti"

	// devicesInfoMask selects the full extended snapshot (areas, zones,
	// scenarios, peripherals, GSM).
	devicesInfoMask = "16908287"
)

// Envelope status codes the cloud uses for token problems.
var authStatusCodes = map[int]bool{18: true, 19: true, 20: true}

// Client talks to INIM Cloud. It owns the session token and refreshes it
// transparently; all methods are safe for concurrent use.
type Client struct {
	// BaseURL may be overridden before the first call.
	BaseURL string

	http     *http.Client
	log      *log.Logger
	email    string
	password string
	clientID string

	mu     sync.Mutex
	token  string
	expiry time.Time
	// deviceID is the panel resolved by the first snapshot fetch, used to
	// target RequestPoll when the config leaves the device unspecified.
	deviceID int

	group singleflight.Group
}

func NewClient(email, password string, logger *log.Logger) *Client {
	return &Client{
		BaseURL:  DefaultBaseURL,
		http:     &http.Client{Timeout: defaultTimeout},
		log:      logger,
		email:    email,
		password: password,
		clientID: fmt.Sprintf("%s-%d", clientName, time.Now().UnixNano()),
	}
}

// call executes one envelope request and returns the Data payload.
func (c *Client) call(ctx context.Context, req request) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, wrapError(KindValidation, "encode request", err)
	}

	u := c.BaseURL + "?req=" + url.QueryEscape(string(body))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, wrapError(KindValidation, "build request", err)
	}
	httpReq.Header.Set("Accept", "*/*")
	httpReq.Header.Set("Accept-Language", "it-it")
	httpReq.Header.Set("Accept-Encoding", "identity")
	httpReq.Header.Set("User-Agent", "Inim Home/5 CFNetwork/1329 Darwin/21.3.0")

	c.log.Cloud("request: %s", req.Method)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, wrapError(KindNetwork, fmt.Sprintf("%s request failed", req.Method), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, newError(KindAuth, 0, "token rejected")
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, newError(KindRateLimit, 0, "rate limited")
	case resp.StatusCode >= 500:
		return nil, newError(KindServer, 0, fmt.Sprintf("server returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, newError(KindServer, 0, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, wrapError(KindServer, "decode response", err)
	}

	c.log.Cloud("response: %s status=%d", req.Method, env.Status)

	if env.Status != 0 {
		msg := env.ErrMsg
		if msg == "" {
			msg = "unknown error"
		}
		if authStatusCodes[env.Status] {
			return nil, newError(KindAuth, env.Status, msg)
		}
		return nil, newError(KindServer, env.Status, msg)
	}

	return env.Data, nil
}
