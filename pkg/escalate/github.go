package escalate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultGitHubURL = "https://api.github.com"

// GitHub opens an issue per ticket.
type GitHub struct {
	baseURL    string
	token      string
	repo       string
	labels     []string
	httpClient *http.Client
}

// GitHubOption configures a GitHub escalator.
type GitHubOption func(*GitHub)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) GitHubOption {
	return func(g *GitHub) {
		g.baseURL = strings.TrimRight(u, "/")
	}
}

// WithLabels sets labels applied to every issue.
func WithLabels(labels ...string) GitHubOption {
	return func(g *GitHub) {
		g.labels = labels
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) GitHubOption {
	return func(g *GitHub) {
		g.httpClient = c
	}
}

// NewGitHub creates an escalator for repo ("owner/name").
func NewGitHub(token, repo string, opts ...GitHubOption) (*GitHub, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: github token is required", ErrNotConfigured)
	}
	if parts := strings.Split(repo, "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: repo must be owner/name, got %q", ErrNotConfigured, repo)
	}
	g := &GitHub{
		baseURL:    defaultGitHubURL,
		token:      token,
		repo:       repo,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type issueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
}

type issueResponse struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// Escalate creates the issue and returns its HTML URL. It does not retry.
func (g *GitHub) Escalate(ctx context.Context, t Ticket) (string, error) {
	body, err := json.Marshal(issueRequest{Title: t.Title(), Body: t.Body(), Labels: g.labels})
	if err != nil {
		return "", fmt.Errorf("failed to marshal issue: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/repos/"+g.repo+"/issues", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("github create issue: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode issue: %w", err)
	}
	if out.HTMLURL == "" {
		return "", fmt.Errorf("github create issue: response has no html_url")
	}
	return out.HTMLURL, nil
}
