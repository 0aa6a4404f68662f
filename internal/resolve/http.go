package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPDirectory fetches stories and users from the Beacon read APIs.
type HTTPDirectory struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewHTTPDirectory creates a directory client against baseURL, authenticating
// with the given bearer token.
func NewHTTPDirectory(baseURL, token string) *HTTPDirectory {
	return &HTTPDirectory{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchStory implements StoryFetcher.
func (d *HTTPDirectory) FetchStory(ctx context.Context, id string) (*Story, error) {
	var st Story
	if err := d.get(ctx, "/api/stories/"+id, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// FetchUser implements UserFetcher.
func (d *HTTPDirectory) FetchUser(ctx context.Context, id string) (*User, error) {
	var u User
	if err := d.get(ctx, "/api/users/"+id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *HTTPDirectory) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if d.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.Token)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
