package tunnel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNgrok_SetsFields(t *testing.T) {
	t.Parallel()

	tun := NewNgrok("test-token", "beacon.ngrok.io")

	require.NotNil(t, tun)
	assert.Equal(t, "test-token", tun.authToken)
	assert.Equal(t, "beacon.ngrok.io", tun.domain)
}

func TestNgrok_Start_WithoutToken_Fails(t *testing.T) {
	t.Parallel()

	tun := NewNgrok("", "")

	_, err := tun.Start(context.Background(), "127.0.0.1:8430")
	assert.ErrorIs(t, err, ErrNoAuthToken)
}

func TestNgrok_PublicURL_BeforeStart(t *testing.T) {
	t.Parallel()

	tun := NewNgrok("test-token", "")

	assert.Empty(t, tun.PublicURL())
}

func TestNgrok_Close_BeforeStart(t *testing.T) {
	t.Parallel()

	tun := NewNgrok("test-token", "")

	assert.NoError(t, tun.Close(), "closing an unstarted tunnel should be a no-op")
}

// No live ngrok connection test here: it would need a real token and make
// network calls.
