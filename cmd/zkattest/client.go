package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apitypes "github.com/weisyn/zkattest/internal/api/types"
)

// restClient 证明服务 REST API 客户端
type restClient struct {
	baseURL    string
	httpClient *http.Client
}

// newRESTClient 创建客户端，baseURL 自动补全 /api/v1
func newRESTClient(baseURL string, timeout time.Duration) *restClient {
	if !strings.HasSuffix(baseURL, "/api/v1") {
		baseURL = strings.TrimRight(baseURL, "/") + "/api/v1"
	}
	return &restClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// envelope 成功响应外层
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// do 发送请求并把 data 字段解析到 result
//
// 非 2xx 响应解析为 ProblemDetails 作为错误返回。
func (c *restClient) do(ctx context.Context, method, path string, params url.Values, body, result interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var pd apitypes.ProblemDetails
		if json.Unmarshal(raw, &pd) == nil && pd.Code != "" {
			return fmt.Errorf("%s (%d %s): %s", pd.Code, resp.StatusCode, pd.UserMessage, pd.Detail)
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if result == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
