package tesla

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
)

// Client Tesla Fleet API 客户端，令牌由调用方按用户传入
type Client struct {
	httpClient *http.Client
	apiHost    string
}

// NewClient 创建新的 Fleet API 客户端
func NewClient(apiHost string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}
	return &Client{
		httpClient: httpClient,
		apiHost:    strings.TrimRight(apiHost, "/"),
	}
}

// apiResponse 通用 API 响应结构
type apiResponse struct {
	Response json.RawMessage `json:"response"`
	Error    string          `json:"error,omitempty"`
}

// doRequest 执行带认证的请求
func (c *Client) doRequest(ctx context.Context, accessToken, method, path string, payload any) (*http.Response, error) {
	if accessToken == "" {
		return nil, ErrUnauthorized
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiHost+path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "DrivewayHub/1.0")

	return c.httpClient.Do(req)
}

// call 执行请求并把 response 字段解码到 out
func (c *Client) call(ctx context.Context, op, accessToken, method, path string, payload, out any) error {
	resp, err := c.doRequest(ctx, accessToken, method, path, payload)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	// 处理不同状态码
	switch resp.StatusCode {
	case http.StatusOK:
		// 正常
	case http.StatusRequestTimeout:
		return ErrVehicleUnavailable
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return &ProviderError{Op: op, Status: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		return nil
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != "" {
		return &ProviderError{Op: op, Status: resp.StatusCode, Body: apiResp.Error}
	}
	if err := json.Unmarshal(apiResp.Response, out); err != nil {
		return fmt.Errorf("decode %s: %w", op, err)
	}
	return nil
}

// ListVehicles 获取车辆列表
func (c *Client) ListVehicles(ctx context.Context, accessToken string) ([]Vehicle, error) {
	var vehicles []Vehicle
	if err := c.call(ctx, "list vehicles", accessToken, http.MethodGet, "/api/1/vehicles", nil, &vehicles); err != nil {
		return nil, err
	}
	return vehicles, nil
}

// GetVehicle 获取单个车辆信息
func (c *Client) GetVehicle(ctx context.Context, accessToken string, id int64) (*Vehicle, error) {
	var vehicle Vehicle
	if err := c.call(ctx, "get vehicle", accessToken, http.MethodGet, fmt.Sprintf("/api/1/vehicles/%d", id), nil, &vehicle); err != nil {
		return nil, err
	}
	return &vehicle, nil
}

// GetVehicleData 获取车辆完整数据
func (c *Client) GetVehicleData(ctx context.Context, accessToken string, id int64) (*VehicleData, error) {
	endpoints := "charge_state;drive_state;location_data;vehicle_config;vehicle_state"
	path := fmt.Sprintf("/api/1/vehicles/%d/vehicle_data?endpoints=%s", id, url.QueryEscape(endpoints))

	var data VehicleData
	if err := c.call(ctx, "get vehicle data", accessToken, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// WakeUp 唤醒车辆
func (c *Client) WakeUp(ctx context.Context, accessToken string, id int64) (*Vehicle, error) {
	var vehicle Vehicle
	if err := c.call(ctx, "wake up", accessToken, http.MethodPost, fmt.Sprintf("/api/1/vehicles/%d/wake_up", id), nil, &vehicle); err != nil {
		return nil, err
	}
	return &vehicle, nil
}

// SendCommand 发送车辆指令
func (c *Client) SendCommand(ctx context.Context, accessToken string, id int64, command string, params map[string]any) (*CommandResult, error) {
	if command == "" || strings.ContainsAny(command, "/?#") {
		return nil, fmt.Errorf("invalid command %q", command)
	}

	var result CommandResult
	path := fmt.Sprintf("/api/1/vehicles/%d/command/%s", id, command)
	if err := c.call(ctx, "command "+command, accessToken, http.MethodPost, path, params, &result); err != nil {
		return nil, err
	}
	if !result.Result {
		return &result, fmt.Errorf("command %s rejected: %s", command, result.Reason)
	}
	return &result, nil
}

// ShareNavigation 推送目的地到车机导航
func (c *Client) ShareNavigation(ctx context.Context, accessToken string, id int64, address string, lat, lng float64) (*CommandResult, error) {
	destination := address
	if destination == "" {
		destination = fmt.Sprintf("%f,%f", lat, lng)
	}

	return c.SendCommand(ctx, accessToken, id, "navigation_request", map[string]any{
		"type":         "share_ext_content_raw",
		"locale":       "en-US",
		"timestamp_ms": time.Now().UnixMilli(),
		"value": map[string]string{
			"android.intent.extra.TEXT": destination,
		},
	})
}
