package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"

	ngroklib "golang.ngrok.com/ngrok"
	ngrokconfig "golang.ngrok.com/ngrok/config"
)

// Ngrok implements Tunnel on top of the ngrok agent library. The listener
// it opens replaces the local one: serve HTTP on Listener() and ngrok
// forwards public traffic to it.
type Ngrok struct {
	authToken string
	domain    string
	listener  net.Listener
	url       string
}

// NewNgrok returns an unstarted tunnel. domain may be empty, in which case
// ngrok assigns a random one.
func NewNgrok(authToken, domain string) *Ngrok {
	return &Ngrok{authToken: authToken, domain: domain}
}

// Start opens the tunnel and returns its public URL. localAddr is only
// logged; ngrok provides its own listener.
func (n *Ngrok) Start(ctx context.Context, localAddr string) (string, error) {
	if n.authToken == "" {
		return "", ErrNoAuthToken
	}

	slog.Info("starting tunnel", "local_addr", localAddr, "domain", n.domain)

	endpoint := ngrokconfig.HTTPEndpoint()
	if n.domain != "" {
		// Fixed domains need a paid plan; free plans get a random one.
		endpoint = ngrokconfig.HTTPEndpoint(ngrokconfig.WithDomain(n.domain))
	}

	listener, err := ngroklib.Listen(ctx, endpoint, ngroklib.WithAuthtoken(n.authToken))
	if err != nil {
		return "", fmt.Errorf("open tunnel: %w", err)
	}

	n.listener = listener
	n.url = listener.Addr().String()
	if !strings.HasPrefix(n.url, "http://") && !strings.HasPrefix(n.url, "https://") {
		n.url = "https://" + n.url
	}

	slog.Info("tunnel established", "public_url", n.url)
	return n.url, nil
}

// Close tears the tunnel down. Safe to call on an unstarted tunnel.
func (n *Ngrok) Close() error {
	if n.listener == nil {
		return nil
	}

	slog.Info("closing tunnel", "public_url", n.url)
	if err := n.listener.Close(); err != nil {
		return fmt.Errorf("close tunnel: %w", err)
	}

	n.listener = nil
	n.url = ""
	return nil
}

// PublicURL returns the public URL, or "" before Start.
func (n *Ngrok) PublicURL() string {
	return n.url
}

// Listener returns the ngrok listener for serving HTTP requests.
func (n *Ngrok) Listener() net.Listener {
	return n.listener
}
