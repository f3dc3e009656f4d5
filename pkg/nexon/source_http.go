package nexon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/ir"
)

// HTTPSource fetches templates from a remote registry over HTTPS. Requests
// inherit the repository's fetch deadline through ctx and are additionally
// rate limited client-side so a compile burst cannot hammer the registry.
type HTTPSource struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPSource creates an HTTP source. A nil client uses http.DefaultClient;
// rps <= 0 disables rate limiting.
func NewHTTPSource(baseURL string, client *http.Client, rps float64) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	s := &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
	if rps > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	}
	return s
}

// Name implements Source.
func (s *HTTPSource) Name() string { return "http:" + s.baseURL }

// Fetch implements Source. The registry contract is
// GET <base>/templates/<id>/<version-or-latest>.
func (s *HTTPSource) Fetch(ctx context.Context, templateID, version string) (*ir.Template, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	endpoint := fmt.Sprintf("%s/templates/%s/%s",
		s.baseURL, url.PathEscape(templateID), url.PathEscape(versionOrLatest(version)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("fetching %s: unexpected status %s", endpoint, resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return Decode(raw)
}

func versionOrLatest(version string) string {
	if version == "" {
		return "latest"
	}
	return version
}
