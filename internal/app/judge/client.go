package judge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	authHeader  = "X-Auth-Token"
	fetchFields = "token,status,stdout,stderr,compile_output,message,time,memory"
	maxBodyLog  = 512
)

// Client talks to a Judge0-compatible HTTP API.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
}

func NewClient(baseURL, authToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		http:      &http.Client{Timeout: timeout},
	}
}

type batchSubmission struct {
	SourceCode     string  `json:"source_code"`
	LanguageID     int     `json:"language_id"`
	Stdin          string  `json:"stdin"`
	ExpectedOutput *string `json:"expected_output,omitempty"`
	CPUTimeLimit   float64 `json:"cpu_time_limit"`
	MemoryLimit    int     `json:"memory_limit"`
}

type batchDispatchRequest struct {
	Submissions []batchSubmission `json:"submissions"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type statusResponse struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type submissionResponse struct {
	Token         string          `json:"token"`
	Status        *statusResponse `json:"status"`
	Stdout        *string         `json:"stdout"`
	Stderr        *string         `json:"stderr"`
	CompileOutput *string         `json:"compile_output"`
	Message       *string         `json:"message"`
	Time          *string         `json:"time"`
	Memory        *int            `json:"memory"`
}

type batchFetchResponse struct {
	Submissions []*submissionResponse `json:"submissions"`
}

// DispatchBatch submits every request in one call and returns one token per
// request, in request order.
func (c *Client) DispatchBatch(ctx context.Context, reqs []ExecutionRequest) ([]string, error) {
	if len(reqs) == 0 {
		return nil, ErrEmptyBatch
	}

	payload := batchDispatchRequest{Submissions: make([]batchSubmission, 0, len(reqs))}
	for _, r := range reqs {
		sub := batchSubmission{
			SourceCode:   encode(r.SourceCode),
			LanguageID:   r.LanguageID,
			Stdin:        encode(r.Stdin),
			CPUTimeLimit: cpuSeconds(r.TimeLimitMs),
			MemoryLimit:  max(r.MemoryLimitKb, MinMemoryLimitKb),
		}
		if r.ExpectedOutput != nil {
			expected := encode(*r.ExpectedOutput)
			sub.ExpectedOutput = &expected
		}
		payload.Submissions = append(payload.Submissions, sub)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("judge.DispatchBatch marshal: %w", err)
	}

	var tokens []tokenResponse
	if err := c.do(ctx, http.MethodPost, "/submissions/batch?base64_encoded=true", body, &tokens); err != nil {
		return nil, fmt.Errorf("judge.DispatchBatch: %w", err)
	}
	if len(tokens) != len(reqs) {
		return nil, fmt.Errorf("judge.DispatchBatch: requested %d, got %d: %w", len(reqs), len(tokens), ErrBatchSizeMismatch)
	}

	out := make([]string, len(tokens))
	for i, t := range tokens {
		if t.Token == "" {
			return nil, fmt.Errorf("judge.DispatchBatch: submission %d rejected: %w", i, ErrBatchSizeMismatch)
		}
		out[i] = t.Token
	}
	return out, nil
}

// FetchBatch returns one Result per token, aligned with tokens. A token the
// judge does not report comes back with StatusUnknown.
func (c *Client) FetchBatch(ctx context.Context, tokens []string) ([]Result, error) {
	if len(tokens) == 0 {
		return nil, ErrEmptyBatch
	}

	q := url.Values{}
	q.Set("tokens", strings.Join(tokens, ","))
	q.Set("base64_encoded", "true")
	q.Set("fields", fetchFields)

	var resp batchFetchResponse
	if err := c.do(ctx, http.MethodGet, "/submissions/batch?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("judge.FetchBatch: %w", err)
	}

	byToken := make(map[string]*submissionResponse, len(resp.Submissions))
	for _, s := range resp.Submissions {
		if s != nil {
			byToken[s.Token] = s
		}
	}

	results := make([]Result, len(tokens))
	for i, tok := range tokens {
		s, ok := byToken[tok]
		if !ok {
			results[i] = Result{Token: tok, Status: StatusUnknown}
			continue
		}
		res, err := s.toResult()
		if err != nil {
			return nil, fmt.Errorf("judge.FetchBatch token %s: %w", tok, err)
		}
		results[i] = res
	}
	return results, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set(authHeader, c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyLog))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (s *submissionResponse) toResult() (Result, error) {
	res := Result{Token: s.Token}
	if s.Status != nil {
		res.Status = Status(s.Status.ID)
		res.Description = s.Status.Description
	}

	var err error
	if res.Stdout, err = decode(s.Stdout); err != nil {
		return Result{}, fmt.Errorf("stdout: %w", err)
	}
	if res.Stderr, err = decode(s.Stderr); err != nil {
		return Result{}, fmt.Errorf("stderr: %w", err)
	}
	if res.CompileOutput, err = decode(s.CompileOutput); err != nil {
		return Result{}, fmt.Errorf("compile_output: %w", err)
	}
	if res.Message, err = decode(s.Message); err != nil {
		return Result{}, fmt.Errorf("message: %w", err)
	}

	if s.Time != nil && *s.Time != "" {
		secs, err := strconv.ParseFloat(*s.Time, 64)
		if err != nil {
			return Result{}, fmt.Errorf("time %q: %w", *s.Time, err)
		}
		res.TimeMs = int(math.Round(secs * 1000))
	}
	if s.Memory != nil {
		res.MemoryKb = *s.Memory
	}
	return res, nil
}

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// decode accepts the judge's line-wrapped base64.
func decode(s *string) (string, error) {
	if s == nil || *s == "" {
		return "", nil
	}
	clean := strings.NewReplacer("\n", "", "\r", "").Replace(*s)
	raw, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func cpuSeconds(ms int) float64 {
	return math.Max(float64(ms)/1000, MinCPUTimeLimitSeconds)
}
