package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lucabelli/amora/internal/reliability"
)

// HTTPGenerator forwards turn requests to a generation service endpoint.
type HTTPGenerator struct {
	url    string
	client *http.Client
}

func NewHTTPGenerator(url string) *HTTPGenerator {
	return &HTTPGenerator{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type httpErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (g *HTTPGenerator) GenerateTurn(ctx context.Context, req Request) (Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := g.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		code := errorCodeOf(body)
		if reliability.IsQuotaHTTPStatus(res.StatusCode) || reliability.IsQuotaErrorCode(code) {
			return Result{}, fmt.Errorf("generator http status %d (%s): %w", res.StatusCode, code, ErrProviderExhausted)
		}
		return Result{}, fmt.Errorf("generator http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var result Result
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	if strings.TrimSpace(result.Content) == "" {
		return Result{}, fmt.Errorf("generator returned empty content")
	}
	return result, nil
}

func errorCodeOf(body []byte) string {
	var parsed httpErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if parsed.Error.Code != "" {
		return parsed.Error.Code
	}
	return parsed.Code
}
