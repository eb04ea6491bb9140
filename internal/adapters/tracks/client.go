package tracks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lyric-notes/internal/domain"
	"lyric-notes/internal/infra/metrics"
)

// Client ищет треки во внешнем каталоге метаданных. Результаты чисто
// информационные: подсказки при заведении документов, не более.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewClient создаёт клиента каталога.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

type searchResponse struct {
	Results []struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Artist string `json:"artist"`
		Album  string `json:"album"`
		URL    string `json:"url"`
	} `json:"results"`
}

// Search выполняет поиск трека по запросу.
func (c *Client) Search(ctx context.Context, query string) ([]domain.TrackMeta, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveNetworkRequest("tracks", "search", "catalog", start, err)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("search failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	out := make([]domain.TrackMeta, 0, len(payload.Results))
	for _, r := range payload.Results {
		out = append(out, domain.TrackMeta{
			ExternalID: r.ID,
			Title:      r.Title,
			Artist:     r.Artist,
			Album:      r.Album,
			URL:        r.URL,
		})
	}
	return out, nil
}
