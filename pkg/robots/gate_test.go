package robots

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/docsmith/internal/models"
)

type stubLoader struct {
	calls atomic.Int32
	text  string
	err   error
	// byURL overrides text for specific robots.txt URLs.
	byURL map[string]string
}

func (s *stubLoader) LoadText(_ context.Context, rawURL string) (string, error) {
	s.calls.Add(1)
	if text, ok := s.byURL[rawURL]; ok {
		return text, nil
	}
	return s.text, s.err
}

func TestAllowed(t *testing.T) {
	loader := &stubLoader{
		text:  "User-agent: *\nDisallow: /private\nAllow: /private/public\n",
		byURL: map[string]string{"https://other.example.com/robots.txt": "User-agent: *\nDisallow: /admin\n"},
	}
	g := NewGate(loader)
	ctx := context.Background()

	assert.True(t, g.Allowed(ctx, "https://example.com/docs/intro"))
	assert.False(t, g.Allowed(ctx, "https://example.com/private/keys"))
	assert.True(t, g.Allowed(ctx, "https://example.com/private/public/page"))
	assert.Equal(t, int32(1), loader.calls.Load(), "rules are cached per host")

	assert.True(t, g.Allowed(ctx, "https://other.example.com/private"), "each host has its own rules")
	assert.False(t, g.Allowed(ctx, "https://other.example.com/admin"))
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestAllowedFailsOpen(t *testing.T) {
	tests := []struct {
		name   string
		loader *stubLoader
	}{
		{"not found", &stubLoader{err: &models.HTTPStatusError{StatusCode: 404}}},
		{"unreachable", &stubLoader{err: errors.New("dial tcp: connection refused")}},
		{"empty", &stubLoader{text: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(tt.loader)
			assert.True(t, g.Allowed(context.Background(), "https://example.com/anything"))
		})
	}
}

func TestCrawlDelayCallback(t *testing.T) {
	loader := &stubLoader{text: "User-agent: *\nCrawl-delay: 2\n"}

	var (
		mu     sync.Mutex
		hosts  []string
		delays []time.Duration
	)
	g := NewGate(loader, WithCrawlDelay(func(host string, d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		hosts = append(hosts, host)
		delays = append(delays, d)
	}))

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, g.Allowed(ctx, "https://example.com/page"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loader.calls.Load())
	assert.Equal(t, []string{"example.com"}, hosts)
	assert.Equal(t, []time.Duration{2 * time.Second}, delays)
	assert.Equal(t, 2*time.Second, g.CrawlDelay(ctx, "https://example.com/other"))
}

func TestDisabled(t *testing.T) {
	loader := &stubLoader{text: "User-agent: *\nDisallow: /\n"}
	g := NewGate(loader, Disabled())

	assert.True(t, g.Allowed(context.Background(), "https://example.com/private"))
	assert.Zero(t, loader.calls.Load())
}

type httpLoader struct{ client *http.Client }

func (h httpLoader) LoadText(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &models.HTTPStatusError{StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	return string(body), err
}

func TestAllowedAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /admin\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := NewGate(httpLoader{client: srv.Client()})
	require.True(t, g.Allowed(context.Background(), srv.URL+"/docs"))
	assert.False(t, g.Allowed(context.Background(), srv.URL+"/admin/users"))
}
