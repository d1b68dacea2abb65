package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/examprep/examadmin/core/catalog"
)

const adminPrefix = "/admin"

// envelope is the body of every API response.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to the curriculum admin API.
type Client struct {
	baseURL string
	http    *rest.Client
	headers map[string]string
}

var _ catalog.Gateway = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(baseURL, "baseURL"),
		vala.GreaterThan(int(timeout), 0, "timeout"),
	).Check()
	if err != nil {
		return nil, err
	}
	if _, err = url.ParseRequestURI(baseURL); err != nil {
		return nil, errors.Wrap(err, "parsing base URL")
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + adminPrefix,
		http:    &rest.Client{HTTPClient: &http.Client{Timeout: timeout}},
		headers: map[string]string{"Accept": "application/json"},
	}, nil
}

// call sends the request and decodes the envelope's data into out (when not nil).
// Transport errors and non-2xx answers become a *catalog.GatewayFailure.
func (c *Client) call(ctx context.Context, op string, method rest.Method, path string, query map[string]string, out interface{}) error {
	res, err := c.http.SendWithContext(ctx, rest.Request{
		Method:      method,
		BaseURL:     c.baseURL + path,
		Headers:     c.headers,
		QueryParams: query,
	})
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), op)
		}
		return &catalog.GatewayFailure{Op: op, Message: err.Error()}
	}

	var env envelope
	decodeErr := json.Unmarshal([]byte(res.Body), &env)
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(res.StatusCode)
		}
		return &catalog.GatewayFailure{Op: op, Status: res.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return &catalog.GatewayFailure{Op: op, Status: res.StatusCode, Message: "malformed response: " + decodeErr.Error()}
	}
	if out == nil {
		return nil
	}
	if err = json.Unmarshal(env.Data, out); err != nil {
		return &catalog.GatewayFailure{Op: op, Status: res.StatusCode, Message: "malformed response data: " + err.Error()}
	}
	return nil
}

// missingID reports a created entity the server answered without an id.
func missingID(op string) error {
	return &catalog.GatewayFailure{Op: op, Message: "malformed response data: missing id"}
}

func (c *Client) FetchAll(ctx context.Context) (catalog.Snapshot, error) {
	var snap catalog.Snapshot
	if err := c.call(ctx, "fetch all", rest.Get, "/gradesSubjects", nil, &snap); err != nil {
		return catalog.Snapshot{}, err
	}
	return snap, nil
}

func (c *Client) ListSubjectsOfGrades(ctx context.Context) ([]catalog.GradeWithSubjects, error) {
	grades := make([]catalog.GradeWithSubjects, 0)
	if err := c.call(ctx, "list subjects of grades", rest.Get, "/listSubjectsOfGrades", nil, &grades); err != nil {
		return nil, err
	}
	return grades, nil
}

func (c *Client) CreateGrade(ctx context.Context, name string) (catalog.Grade, error) {
	var grade catalog.Grade
	if err := c.call(ctx, "create grade", rest.Post, "/createGrade", map[string]string{"name": name}, &grade); err != nil {
		return catalog.Grade{}, err
	}
	if grade.ID == "" {
		return catalog.Grade{}, missingID("create grade")
	}
	return grade, nil
}

func (c *Client) CreateSubject(ctx context.Context, name string) (catalog.Subject, error) {
	var subject catalog.Subject
	if err := c.call(ctx, "create subject", rest.Post, "/createSubject", map[string]string{"name": name}, &subject); err != nil {
		return catalog.Subject{}, err
	}
	if subject.ID == "" {
		return catalog.Subject{}, missingID("create subject")
	}
	return subject, nil
}

func (c *Client) UpdateGrade(ctx context.Context, id, name string) error {
	return c.call(ctx, "update grade", rest.Put, "/updateGrade/"+url.PathEscape(id), map[string]string{"name": name}, nil)
}

func (c *Client) UpdateSubject(ctx context.Context, id, name string) error {
	return c.call(ctx, "update subject", rest.Put, "/updateSubject/"+url.PathEscape(id), map[string]string{"name": name}, nil)
}

func (c *Client) DeleteGrade(ctx context.Context, id string) error {
	return c.call(ctx, "delete grade", rest.Delete, "/deleteGrade/"+url.PathEscape(id), nil, nil)
}

func (c *Client) DeleteSubject(ctx context.Context, id string) error {
	return c.call(ctx, "delete subject", rest.Delete, "/deleteSubject/"+url.PathEscape(id), nil, nil)
}

func (c *Client) AssignSubject(ctx context.Context, subjectID, gradeID string) error {
	query := map[string]string{"subjectId": subjectID, "gradeId": gradeID}
	return c.call(ctx, "assign subject", rest.Post, "/assignSubjectToGrade", query, nil)
}

func (c *Client) UnassignSubject(ctx context.Context, subjectID, gradeID string) error {
	query := map[string]string{"subjectId": subjectID, "gradeId": gradeID}
	return c.call(ctx, "remove subject", rest.Delete, "/removeSubjectFromGrade", query, nil)
}
