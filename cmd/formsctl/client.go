package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API mount points on the forms server.
const (
	formsAPI = "/api/forms/v1"
	jobsAPI  = "/api/jobs/v1"
)

// formsClient wraps an HTTP client, the server base URL and the caller's
// tenant and identity headers.
type formsClient struct {
	baseURL string
	tenant  string
	user    string
	token   string
	http    *http.Client
}

func newFormsClient(baseURL, tenant, user, token string) *formsClient {
	return &formsClient{
		baseURL: baseURL,
		tenant:  tenant,
		user:    user,
		token:   token,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError is a non-2xx reply. Validation failures carry one entry per
// violation.
type apiError struct {
	Status  int
	Message string
	Errors  []fieldError
}

type fieldError struct {
	Kind    string `json:"kind"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	lines := make([]string, 0, len(e.Errors)+1)
	lines = append(lines, fmt.Sprintf("server returned %d:", e.Status))
	for _, fe := range e.Errors {
		if fe.Field == "" {
			lines = append(lines, fmt.Sprintf("  %s: %s", fe.Kind, fe.Message))
		} else {
			lines = append(lines, fmt.Sprintf("  %s: %s: %s", fe.Kind, fe.Field, fe.Message))
		}
	}
	return strings.Join(lines, "\n")
}

// do performs a request and returns the raw body of a 2xx reply.
func (c *formsClient) do(method, path string, query url.Values, body any) ([]byte, http.Header, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case []byte:
			reader = bytes.NewReader(b)
		default:
			data, err := json.Marshal(body)
			if err != nil {
				return nil, nil, fmt.Errorf("marshal error: %w", err)
			}
			reader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequest(method, u, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.tenant != "" {
		req.Header.Set("X-Tenant-ID", c.tenant)
	}
	if c.user != "" {
		req.Header.Set("X-Remote-User", c.user)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to forms server at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var parsed struct {
			Error   string       `json:"error"`
			Message string       `json:"message"`
			Errors  []fieldError `json:"errors"`
		}
		if json.Unmarshal(data, &parsed) == nil {
			switch {
			case parsed.Message != "":
				apiErr.Message = parsed.Message
			case parsed.Error != "":
				apiErr.Message = parsed.Error
			}
			apiErr.Errors = parsed.Errors
		}
		return nil, nil, apiErr
	}
	return data, resp.Header, nil
}

// call performs a request and decodes a JSON reply into v when v is non-nil.
func (c *formsClient) call(method, path string, query url.Values, body, v any) error {
	data, _, err := c.do(method, path, query, body)
	if err != nil {
		return err
	}
	if v == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode error: %w", err)
	}
	return nil
}
