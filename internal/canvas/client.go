package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shrimpsizemoose/lussekatt/internal/metrics"
)

const defaultPerPage = "100"

// APIError is a non-2xx answer from Canvas. The request itself succeeded,
// so callers can branch on StatusCode (401 bad token, 404 no such course,
// 429 throttled).
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("canvas: status %d: %s", e.StatusCode, body)
}

// TransportError means the request never produced an HTTP response:
// DNS failure, refused connection, timeout.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("canvas: request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// do performs one request against the Canvas API and returns the body and
// the Link header. Non-2xx statuses come back as *APIError.
func (c *Client) do(ctx context.Context, method, rawURL string, form url.Values) ([]byte, string, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, "", fmt.Errorf("canvas: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.CanvasRequestDuration.WithLabelValues(method, "error").Observe(time.Since(start).Seconds())
		return nil, "", &TransportError{Err: err}
	}
	defer resp.Body.Close()
	metrics.CanvasRequestDuration.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, resp.Header.Get("Link"), nil
}

func (c *Client) url(path string, params url.Values) string {
	u := c.baseURL + "/api/v1" + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// nextLink pulls the rel="next" URL out of a Link header, or "" when the
// current page is the last one.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		section := strings.Split(part, ";")
		if len(section) < 2 {
			continue
		}
		if strings.TrimSpace(section[1]) != `rel="next"` {
			continue
		}
		u := strings.TrimSpace(section[0])
		return strings.Trim(u, "<>")
	}
	return ""
}

// listPaged follows rel="next" Link headers until exhaustion, appending
// every page in order.
func listPaged[T any](ctx context.Context, c *Client, path string, params url.Values) ([]T, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("per_page", defaultPerPage)

	var out []T
	next := c.url(path, params)
	for next != "" {
		data, link, err := c.do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		var page []T
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("canvas: decode %s: %w", path, err)
		}
		out = append(out, page...)
		next = nextLink(link)
	}
	return out, nil
}

func (c *Client) GetCourse(ctx context.Context, courseID int64) (*Course, error) {
	data, _, err := c.do(ctx, http.MethodGet, c.url(fmt.Sprintf("/courses/%d", courseID), nil), nil)
	if err != nil {
		return nil, err
	}
	var course Course
	if err := json.Unmarshal(data, &course); err != nil {
		return nil, fmt.Errorf("canvas: decode course: %w", err)
	}
	return &course, nil
}

func (c *Client) ListCourses(ctx context.Context) ([]Course, error) {
	return listPaged[Course](ctx, c, "/courses", nil)
}

func (c *Client) ListEnrollments(ctx context.Context, courseID int64) ([]Enrollment, error) {
	return listPaged[Enrollment](ctx, c, fmt.Sprintf("/courses/%d/enrollments", courseID), nil)
}

func (c *Client) ListUsers(ctx context.Context, courseID int64) ([]User, error) {
	params := url.Values{}
	params.Add("include[]", "email")
	return listPaged[User](ctx, c, fmt.Sprintf("/courses/%d/users", courseID), params)
}

func (c *Client) ListAssignments(ctx context.Context, courseID int64) ([]Assignment, error) {
	return listPaged[Assignment](ctx, c, fmt.Sprintf("/courses/%d/assignments", courseID), nil)
}

func (c *Client) ListSubmissions(ctx context.Context, courseID, assignmentID int64) ([]Submission, error) {
	path := fmt.Sprintf("/courses/%d/assignments/%d/submissions", courseID, assignmentID)
	return listPaged[Submission](ctx, c, path, nil)
}

func (c *Client) ListGroupCategories(ctx context.Context, courseID int64) ([]GroupCategory, error) {
	return listPaged[GroupCategory](ctx, c, fmt.Sprintf("/courses/%d/group_categories", courseID), nil)
}

func (c *Client) ListGroups(ctx context.Context, categoryID int64) ([]Group, error) {
	return listPaged[Group](ctx, c, fmt.Sprintf("/group_categories/%d/groups", categoryID), nil)
}

func (c *Client) ListGroupUsers(ctx context.Context, groupID int64) ([]GroupUser, error) {
	return listPaged[GroupUser](ctx, c, fmt.Sprintf("/groups/%d/users", groupID), nil)
}

// ReplaceGroupMembers swaps the full member list of a group. Canvas treats
// members[] on PUT as authoritative, so anyone not listed is removed.
func (c *Client) ReplaceGroupMembers(ctx context.Context, groupID int64, userIDs []int64) error {
	form := url.Values{}
	for _, id := range userIDs {
		form.Add("members[]", strconv.FormatInt(id, 10))
	}
	_, _, err := c.do(ctx, http.MethodPut, c.url(fmt.Sprintf("/groups/%d", groupID), nil), form)
	return err
}
