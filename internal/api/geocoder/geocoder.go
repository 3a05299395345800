package geocoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultBaseURL Nominatim 公共实例
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// ErrNoResult 地址无法解析
var ErrNoResult = errors.New("address not found")

// Location 地理编码结果
type Location struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"display_name"`
	City        string  `json:"city"`
	State       string  `json:"state"`
	ZipCode     string  `json:"zip_code"`
}

// Client 基于 Nominatim（OpenStreetMap）的地址解析客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	// 缓存：同一地址只请求一次
	cache   map[string]*Location
	cacheMu sync.RWMutex

	// Nominatim 使用条款要求每秒最多 1 次请求
	limiter *rate.Limiter
}

// NewClient 创建地址解析客户端
func NewClient(baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:  logger,
		cache:   make(map[string]*Location),
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// nominatimResult search 接口返回的单条结果
type nominatimResult struct {
	Lat         string           `json:"lat"`
	Lon         string           `json:"lon"`
	DisplayName string           `json:"display_name"`
	Address     nominatimAddress `json:"address"`
}

type nominatimAddress struct {
	City     string `json:"city"`
	Town     string `json:"town"`
	Village  string `json:"village"`
	State    string `json:"state"`
	Postcode string `json:"postcode"`
}

// Geocode 把地址解析为坐标
func (c *Client) Geocode(ctx context.Context, address string) (*Location, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrNoResult
	}
	cacheKey := strings.ToLower(address)

	c.cacheMu.RLock()
	if loc, ok := c.cache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		return loc, nil
	}
	c.cacheMu.RUnlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	loc, err := c.search(ctx, address)
	if err != nil {
		return nil, err
	}

	c.cacheMu.Lock()
	// 限制缓存大小
	if len(c.cache) >= 10000 {
		c.cache = make(map[string]*Location)
	}
	c.cache[cacheKey] = loc
	c.cacheMu.Unlock()

	return loc, nil
}

func (c *Client) search(ctx context.Context, address string) (*Location, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	// Nominatim 要求设置 User-Agent
	req.Header.Set("User-Agent", "DrivewayHub/1.0 (driveway listings)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim api returned status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrNoResult
	}

	r := results[0]
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("parse lat %q: %w", r.Lat, err)
	}
	lng, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("parse lon %q: %w", r.Lon, err)
	}

	// 城市字段可能在 city/town/village 中
	city := r.Address.City
	if city == "" {
		city = r.Address.Town
	}
	if city == "" {
		city = r.Address.Village
	}

	loc := &Location{
		Latitude:    lat,
		Longitude:   lng,
		DisplayName: r.DisplayName,
		City:        city,
		State:       r.Address.State,
		ZipCode:     r.Address.Postcode,
	}

	c.logger.Debug("Geocoded via Nominatim",
		zap.String("address", address),
		zap.Float64("lat", lat),
		zap.Float64("lng", lng))

	return loc, nil
}

// CacheSize 获取缓存大小
func (c *Client) CacheSize() int {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return len(c.cache)
}
