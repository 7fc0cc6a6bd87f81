package inim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoginInvalidCredentialsIsTerminal(t *testing.T) {
	t.Parallel()

	f, srv := newFakeCloud(t)
	f.loginStatus = 5 // any non-auth, non-zero envelope status at login

	c := newTestClient(srv)
	_, err := c.FetchSnapshot(context.Background(), 0)
	require.Error(t, err)
	require.Equal(t, KindInvalidCredentials, Classify(err))
	require.False(t, IsRetryable(err))

	// Exactly one attempt, no token stored.
	f.mu.Lock()
	require.Equal(t, 1, f.logins)
	f.mu.Unlock()

	c.mu.Lock()
	require.Empty(t, c.token)
	c.mu.Unlock()
}

func TestSingleFlightRefresh(t *testing.T) {
	t.Parallel()

	f, srv := newFakeCloud(t)
	c := newTestClient(srv)

	const n = 20

	tokens := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = c.ensureToken(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}

	f.mu.Lock()
	require.Equal(t, 1, f.logins, "concurrent callers must share one login")
	f.mu.Unlock()

	for i := 1; i < n; i++ {
		require.Equal(t, tokens[0], tokens[i], "all callers must observe the same token")
	}
}

func TestAuthorizedRetriesOnceOnTokenRejection(t *testing.T) {
	t.Parallel()

	f, srv := newFakeCloud(t)
	c := newTestClient(srv)

	// Obtain a token the server will then reject once.
	_, err := c.ensureToken(context.Background())
	require.NoError(t, err)

	f.mu.Lock()
	f.failDevices = 1
	f.mu.Unlock()

	dev, err := c.FetchSnapshot(context.Background(), 77)
	require.NoError(t, err)
	require.Equal(t, 77, dev.DeviceID)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Equal(t, 2, f.logins, "rejection triggers exactly one refresh")
	// RequestPoll is best-effort; GetDevicesExtended itself ran twice.
	require.Equal(t, 2, f.devicesCalls)
}

func TestAuthorizedDoesNotRetryTwice(t *testing.T) {
	t.Parallel()

	f, srv := newFakeCloud(t)
	c := newTestClient(srv)

	_, err := c.ensureToken(context.Background())
	require.NoError(t, err)

	f.mu.Lock()
	f.failDevices = 10 // keep rejecting
	f.mu.Unlock()

	calls := 0
	err = c.authorized(context.Background(), func(ctx context.Context, token string) error {
		calls++
		return newError(KindAuth, 19, "token expired")
	})
	require.Error(t, err)
	require.True(t, IsAuth(err))
	require.Equal(t, 2, calls, "one initial attempt plus one retry")
}

func TestExpiredTokenRefreshesBeforeUse(t *testing.T) {
	t.Parallel()

	f, srv := newFakeCloud(t)
	c := newTestClient(srv)

	_, err := c.ensureToken(context.Background())
	require.NoError(t, err)

	// Force the expiry into the past; next use must log in again rather than
	// send the stale token.
	c.mu.Lock()
	c.expiry = time.Now().Add(-time.Hour)
	c.mu.Unlock()

	_, err = c.FetchSnapshot(context.Background(), 77)
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Equal(t, 2, f.logins)
	require.Equal(t, 1, f.devicesCalls)
}

func TestInvalidateForcesLogin(t *testing.T) {
	t.Parallel()

	f, srv := newFakeCloud(t)
	c := newTestClient(srv)

	_, err := c.ensureToken(context.Background())
	require.NoError(t, err)

	c.Invalidate()

	_, err = c.ensureToken(context.Background())
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Equal(t, 2, f.logins)
}
