package tunnel

import (
	"context"
	"errors"
	"net"
)

// ErrNoAuthToken is returned when a tunnel is started without credentials.
var ErrNoAuthToken = errors.New("tunnel: auth token is required (set tunnel.authtoken in config or BEACON_NGROK_AUTHTOKEN)")

// Tunnel exposes the local event channel and API on a public HTTPS URL,
// so clients outside the local network can subscribe.
type Tunnel interface {
	Start(ctx context.Context, localAddr string) (publicURL string, err error)
	Close() error
	PublicURL() string
	Listener() net.Listener
}
