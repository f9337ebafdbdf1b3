//go:build bdd

// Package steps provides godog step definitions for BDD tests.
package steps

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// StreamFrame is one decoded server-sent event.
type StreamFrame struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// TestContext holds state shared across steps within a single scenario.
type TestContext struct {
	BaseURL        string
	LastStatusCode int
	LastBody       []byte
	LastJSON       map[string]interface{}
	LastJSONArray  []interface{}
	StoredValues   map[string]string // for passing values between steps

	// Event stream state.
	StreamStatus int
	StreamFrames chan StreamFrame
	StreamDone   chan struct{}
	LastFrame    *StreamFrame
	streamCancel context.CancelFunc

	client *http.Client
}

// NewTestContext creates a fresh test context.
func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		BaseURL:      baseURL,
		StoredValues: make(map[string]string),
		client:       &http.Client{Timeout: 5 * time.Second},
	}
}

// resolveVars replaces {{key}} placeholders in a string with stored values.
func (tc *TestContext) resolveVars(s string) string {
	for key, val := range tc.StoredValues {
		s = strings.ReplaceAll(s, "{{"+key+"}}", val)
	}
	return s
}

// DoRequest sends an HTTP request with a raw JSON body and stores the response.
// Both the path and the body may contain {{key}} placeholders.
func (tc *TestContext) DoRequest(method, path, body string) error {
	path = tc.resolveVars(path)
	url := tc.BaseURL + path

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(tc.resolveVars(body))
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	tc.LastStatusCode = resp.StatusCode
	tc.LastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	tc.decodeBody()
	return nil
}

// decodeBody parses the last body as a JSON object or array when possible.
func (tc *TestContext) decodeBody() {
	tc.LastJSON = nil
	tc.LastJSONArray = nil
	if len(tc.LastBody) == 0 {
		return
	}
	switch tc.LastBody[0] {
	case '{':
		var obj map[string]interface{}
		if err := json.Unmarshal(tc.LastBody, &obj); err == nil {
			tc.LastJSON = obj
		}
	case '[':
		var arr []interface{}
		if err := json.Unmarshal(tc.LastBody, &arr); err == nil {
			tc.LastJSONArray = arr
		}
	}
}

// GET sends a GET request.
func (tc *TestContext) GET(path string) error {
	return tc.DoRequest("GET", path, "")
}

// POST sends a POST request with a raw JSON body.
func (tc *TestContext) POST(path, body string) error {
	return tc.DoRequest("POST", path, body)
}

// DELETE sends a DELETE request.
func (tc *TestContext) DELETE(path string) error {
	return tc.DoRequest("DELETE", path, "")
}

// JSONField extracts a field from the last JSON response.
func (tc *TestContext) JSONField(key string) (interface{}, error) {
	if tc.LastJSON == nil {
		return nil, fmt.Errorf("no JSON object in last response: %s", string(tc.LastBody))
	}
	val, ok := tc.LastJSON[key]
	if !ok {
		return nil, fmt.Errorf("field %q not found in response: %s", key, string(tc.LastBody))
	}
	return val, nil
}

// JSONFieldInt extracts an integer field from the last JSON response.
func (tc *TestContext) JSONFieldInt(key string) (int, error) {
	val, err := tc.JSONField(key)
	if err != nil {
		return 0, err
	}
	f, ok := val.(float64)
	if !ok {
		return 0, fmt.Errorf("field %q is not a number: %T", key, val)
	}
	return int(f), nil
}

// JSONFieldString extracts a string field from the last JSON response.
func (tc *TestContext) JSONFieldString(key string) (string, error) {
	val, err := tc.JSONField(key)
	if err != nil {
		return "", err
	}
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("field %q is not a string: %T", key, val)
	}
	return s, nil
}

// DataField extracts a field from the data object of a mutation response.
func (tc *TestContext) DataField(key string) (interface{}, error) {
	raw, err := tc.JSONField("data")
	if err != nil {
		return nil, err
	}
	data, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("response data is not an object: %s", string(tc.LastBody))
	}
	val, ok := data[key]
	if !ok {
		return nil, fmt.Errorf("data field %q not found in response: %s", key, string(tc.LastBody))
	}
	return val, nil
}

// DataArray extracts the data field of a mutation response as an array.
func (tc *TestContext) DataArray() ([]interface{}, error) {
	raw, err := tc.JSONField("data")
	if err != nil {
		return nil, err
	}
	arr, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("response data is not an array: %s", string(tc.LastBody))
	}
	return arr, nil
}

// OpenStream opens the event stream at path and starts collecting frames.
// It returns once response headers arrive; a non-200 response is stored for
// the usual error assertions and the stream is marked done.
func (tc *TestContext) OpenStream(path string) error {
	path = tc.resolveVars(path)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tc.BaseURL+path, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("create request: %w", err)
	}

	// The shared client enforces a timeout; streams need one without.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("open stream: %w", err)
	}

	tc.StreamStatus = resp.StatusCode
	tc.StreamFrames = make(chan StreamFrame, 16)
	tc.StreamDone = make(chan struct{})
	tc.streamCancel = cancel

	if resp.StatusCode != http.StatusOK {
		tc.LastStatusCode = resp.StatusCode
		tc.LastBody, _ = io.ReadAll(resp.Body)
		resp.Body.Close()
		tc.decodeBody()
		close(tc.StreamDone)
		return nil
	}

	go func() {
		defer close(tc.StreamDone)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var frame StreamFrame
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
				continue
			}
			tc.StreamFrames <- frame
		}
	}()

	return nil
}

// CloseStream tears down any open event stream.
func (tc *TestContext) CloseStream() {
	if tc.streamCancel == nil {
		return
	}
	tc.streamCancel()
	select {
	case <-tc.StreamDone:
	case <-time.After(2 * time.Second):
	}
	tc.streamCancel = nil
}
