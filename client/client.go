// Package client talks to the MOMENTS & ME API and keeps a reader's local
// like and comment state consistent with the server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"moments/models"
)

const defaultTimeout = 15 * time.Second

// APIError is a failure envelope returned by the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("moments api: %d %s: %s", e.Status, e.Code, e.Message)
}

// LikeState is the server's view of a post's likes for the caller.
type LikeState struct {
	Likes       int  `json:"likes"`
	Liked       bool `json:"liked"`
	TotalLikers int  `json:"totalLikers"`
}

// DeleteResult mirrors the comment delete response.
type DeleteResult struct {
	DeletedCommentID  string `json:"deletedCommentId"`
	RemainingComments int    `json:"remainingComments"`
}

type AuthResult struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

type PostPage struct {
	Posts []models.Post `json:"posts"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New builds a client for baseURL, e.g. "https://moments.example.com/api".
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type envelope struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do sends in as JSON and decodes a successful envelope into out. Requests
// are never retried.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{Status: resp.StatusCode, Code: "UNEXPECTED_RESPONSE", Message: http.StatusText(resp.StatusCode)}
	}
	if !env.Success {
		if env.Code == "" {
			env.Code = "UNEXPECTED_RESPONSE"
		}
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func postPath(postID string, rest ...string) string {
	p := "/posts/" + url.PathEscape(postID)
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p
}

// Signup registers and adopts the returned token.
func (c *Client) Signup(ctx context.Context, name, email, password string) (AuthResult, error) {
	var res AuthResult
	err := c.do(ctx, http.MethodPost, "/auth/signup", map[string]string{
		"name": name, "email": email, "password": password,
	}, &res)
	if err != nil {
		return AuthResult{}, err
	}
	c.SetToken(res.Token)
	return res, nil
}

// Login adopts the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var res AuthResult
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": password,
	}, &res)
	if err != nil {
		return AuthResult{}, err
	}
	c.SetToken(res.Token)
	return res, nil
}

func (c *Client) Me(ctx context.Context) (models.User, error) {
	var res struct {
		User models.User `json:"user"`
	}
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, &res)
	return res.User, err
}

func (c *Client) ListPosts(ctx context.Context, f models.PostFilter) (PostPage, error) {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Tag != "" {
		q.Set("tag", f.Tag)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	path := "/posts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var res PostPage
	err := c.do(ctx, http.MethodGet, path, nil, &res)
	return res, err
}

func (c *Client) GetPost(ctx context.Context, postID string) (models.Post, error) {
	var res struct {
		Post models.Post `json:"post"`
	}
	err := c.do(ctx, http.MethodGet, postPath(postID), nil, &res)
	return res.Post, err
}

// CreatePost requires an admin token.
func (c *Client) CreatePost(ctx context.Context, in models.PostInput) (models.Post, error) {
	var res struct {
		Post models.Post `json:"post"`
	}
	err := c.do(ctx, http.MethodPost, "/posts", in, &res)
	return res.Post, err
}

func (c *Client) Suggestions(ctx context.Context, limit int) ([]models.Suggestion, error) {
	path := "/posts/suggestions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var res struct {
		Posts []models.Suggestion `json:"posts"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &res)
	return res.Posts, err
}

func (c *Client) ToggleLike(ctx context.Context, postID string) (LikeState, error) {
	var res LikeState
	err := c.do(ctx, http.MethodPost, postPath(postID, "like"), nil, &res)
	return res, err
}

func (c *Client) LikeStatus(ctx context.Context, postID string) (LikeState, error) {
	var res LikeState
	err := c.do(ctx, http.MethodGet, postPath(postID, "like"), nil, &res)
	return res, err
}

func (c *Client) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	var res struct {
		Comments []models.Comment `json:"comments"`
	}
	err := c.do(ctx, http.MethodGet, postPath(postID, "comments"), nil, &res)
	return res.Comments, err
}

// AddComment returns the stored comment, carrying its server id.
func (c *Client) AddComment(ctx context.Context, postID, name, text string) (models.Comment, error) {
	var res struct {
		Comment models.Comment `json:"comment"`
	}
	err := c.do(ctx, http.MethodPost, postPath(postID, "comments"), map[string]string{
		"name": name, "comment": text,
	}, &res)
	return res.Comment, err
}

func (c *Client) EditComment(ctx context.Context, postID, commentID, text string) (models.Comment, error) {
	var res struct {
		Comment models.Comment `json:"comment"`
	}
	err := c.do(ctx, http.MethodPut, postPath(postID, "comments", commentID), map[string]string{
		"comment": text,
	}, &res)
	return res.Comment, err
}

func (c *Client) DeleteComment(ctx context.Context, postID, commentID string) (DeleteResult, error) {
	var res DeleteResult
	err := c.do(ctx, http.MethodDelete, postPath(postID, "comments", commentID), nil, &res)
	return res, err
}
