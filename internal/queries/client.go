package queries

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/perchhq/perch-sync/internal/observability"
	"github.com/perchhq/perch-sync/internal/pagination"
	"github.com/perchhq/perch-sync/pkg/models"
)

// TokenFunc supplies the current bearer token at request time, so the
// client always attaches the latest refreshed token.
type TokenFunc func() string

// Client queries the server for entity snapshots and connection
// windows. Responses are returned to the caller; writing snapshots
// through to the entity cache is the shell's job.
type Client struct {
	baseURL    string
	token      TokenFunc
	httpClient *http.Client
	metrics    *observability.Metrics
	tracer     *observability.Tracer
}

// NewClient builds a query client. httpClient may be nil; a
// 10s-timeout default is used. metrics and tracer may be nil.
func NewClient(baseURL string, token TokenFunc, httpClient *http.Client, metrics *observability.Metrics, tracer *observability.Tracer) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		metrics:    metrics,
		tracer:     tracer,
	}
}

// Space returns one space snapshot.
func (c *Client) Space(ctx context.Context, id string) (models.Space, error) {
	var out models.Space
	err := c.getJSON(ctx, "space", "/api/spaces/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Spaces returns the viewer's spaces.
func (c *Client) Spaces(ctx context.Context) ([]models.Space, error) {
	var out []models.Space
	err := c.getJSON(ctx, "spaces", "/api/spaces", nil, &out)
	return out, err
}

// Group returns one group snapshot.
func (c *Client) Group(ctx context.Context, id string) (models.Group, error) {
	var out models.Group
	err := c.getJSON(ctx, "group", "/api/groups/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Groups returns a window over a space's groups.
func (c *Client) Groups(ctx context.Context, spaceID string, page pagination.PageRequest) (models.Connection[models.Group], error) {
	var out models.Connection[models.Group]
	err := c.getJSON(ctx, "groups", "/api/spaces/"+url.PathEscape(spaceID)+"/groups", pageValues(page), &out)
	return out, err
}

// Post returns one post snapshot.
func (c *Client) Post(ctx context.Context, id string) (models.Post, error) {
	var out models.Post
	err := c.getJSON(ctx, "post", "/api/posts/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Posts returns a window over a group's posts in server order.
func (c *Client) Posts(ctx context.Context, groupID string, page pagination.PageRequest) (models.Connection[models.Post], error) {
	var out models.Connection[models.Post]
	err := c.getJSON(ctx, "posts", "/api/groups/"+url.PathEscape(groupID)+"/posts", pageValues(page), &out)
	return out, err
}

// Replies returns a window over a post's replies in server order.
func (c *Client) Replies(ctx context.Context, postID string, page pagination.PageRequest) (models.Connection[models.Reply], error) {
	var out models.Connection[models.Reply]
	err := c.getJSON(ctx, "replies", "/api/posts/"+url.PathEscape(postID)+"/replies", pageValues(page), &out)
	return out, err
}

// Notifications pages through the viewer's mention notifications,
// newest first. Each node is the mentioning post's snapshot.
func (c *Client) Notifications(ctx context.Context, page pagination.PageRequest) (models.Connection[models.Post], error) {
	var out models.Connection[models.Post]
	err := c.getJSON(ctx, "notifications", "/api/notifications", pageValues(page), &out)
	return out, err
}

// Me returns the viewer's own user snapshot.
func (c *Client) Me(ctx context.Context) (models.User, error) {
	var out models.User
	err := c.getJSON(ctx, "me", "/api/me", nil, &out)
	return out, err
}

func pageValues(page pagination.PageRequest) url.Values {
	values := url.Values{}
	if page.First > 0 {
		values.Set("first", strconv.Itoa(page.First))
	}
	if page.After != "" {
		values.Set("after", page.After)
	}
	if page.Last > 0 {
		values.Set("last", strconv.Itoa(page.Last))
	}
	if page.Before != "" {
		values.Set("before", page.Before)
	}
	return values
}

func (c *Client) getJSON(ctx context.Context, operation, path string, values url.Values, out any) error {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "query."+operation,
		attribute.String("query.path", path))

	err := c.doGetJSON(ctx, path, values, out)

	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.ObserveQuery(operation, status, time.Since(start).Seconds())
	observability.End(span, err)
	return err
}

func (c *Client) doGetJSON(ctx context.Context, path string, values url.Values, out any) error {
	target := c.baseURL + path
	if len(values) > 0 {
		target += "?" + values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrTransport, path, err)
	}
	return nil
}
