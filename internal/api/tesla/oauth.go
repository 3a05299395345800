package tesla

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultScope 默认授权范围
const DefaultScope = "openid offline_access user_data vehicle_device_data vehicle_cmds vehicle_charging_cmds"

// Token 认证令牌
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IDToken      string    `json:"id_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	CreatedAt    time.Time `json:"created_at"`
}

// ExpiresAt 令牌过期时间
func (t *Token) ExpiresAt() time.Time {
	return t.CreatedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// OAuthConfig OAuth 配置
type OAuthConfig struct {
	AuthHost     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string
	Audience     string
	HTTPClient   *http.Client
}

// AuthRequest 一次授权请求
type AuthRequest struct {
	URL          string `json:"auth_url"`
	State        string `json:"state"`
	CodeVerifier string `json:"-"`
}

// OAuthClient Authorization Code + PKCE 客户端
type OAuthClient struct {
	httpClient *http.Client
	cfg        OAuthConfig
	now        func() time.Time
}

// NewOAuthClient 创建 OAuth 客户端，缺少必需配置时立即失败
func NewOAuthClient(cfg OAuthConfig) (*OAuthClient, error) {
	switch {
	case strings.TrimSpace(cfg.ClientID) == "":
		return nil, &ConfigError{Field: "TESLA_CLIENT_ID"}
	case strings.TrimSpace(cfg.ClientSecret) == "":
		return nil, &ConfigError{Field: "TESLA_CLIENT_SECRET"}
	case strings.TrimSpace(cfg.RedirectURI) == "":
		return nil, &ConfigError{Field: "TESLA_OAUTH_REDIRECT_URI"}
	}

	if cfg.AuthHost == "" {
		cfg.AuthHost = "https://auth.tesla.com"
	}
	cfg.AuthHost = strings.TrimRight(cfg.AuthHost, "/")
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &OAuthClient{
		httpClient: httpClient,
		cfg:        cfg,
		now:        time.Now,
	}, nil
}

// GenerateAuthURL 生成授权地址、state 和 code_verifier
func (c *OAuthClient) GenerateAuthURL(userID int64) (*AuthRequest, error) {
	state, err := c.newState(userID)
	if err != nil {
		return nil, err
	}

	verifier, err := randomURLSafe(32)
	if err != nil {
		return nil, fmt.Errorf("generate code verifier: %w", err)
	}

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", c.cfg.ClientID)
	params.Set("redirect_uri", c.cfg.RedirectURI)
	params.Set("scope", c.cfg.Scope)
	params.Set("state", state)
	params.Set("code_challenge", CodeChallenge(verifier))
	params.Set("code_challenge_method", "S256")
	params.Set("locale", "en-US")
	params.Set("prompt", "login")

	return &AuthRequest{
		URL:          c.cfg.AuthHost + "/oauth2/v3/authorize?" + params.Encode(),
		State:        state,
		CodeVerifier: verifier,
	}, nil
}

// newState 编码 "userID:毫秒时间戳:随机串"
func (c *OAuthClient) newState(userID int64) (string, error) {
	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate state nonce: %w", err)
	}
	raw := fmt.Sprintf("%d:%d:%s", userID, c.now().UnixMilli(), hex.EncodeToString(nonce))
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

// ParseState 解析 state，返回用户 ID；超过 maxAge 视为过期
func (c *OAuthClient) ParseState(state string, maxAge time.Duration) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		return 0, ErrInvalidState
	}

	parts := strings.Split(string(raw), ":")
	if len(parts) != 3 || parts[2] == "" {
		return 0, ErrInvalidState
	}

	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, ErrInvalidState
	}
	issuedMs, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, ErrInvalidState
	}

	if maxAge > 0 && c.now().Sub(time.UnixMilli(issuedMs)) > maxAge {
		return 0, ErrStateExpired
	}

	return userID, nil
}

// ExchangeCode 用授权码换取令牌
func (c *OAuthClient) ExchangeCode(ctx context.Context, code, codeVerifier string) (*Token, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("client_id", c.cfg.ClientID)
	data.Set("client_secret", c.cfg.ClientSecret)
	data.Set("code", code)
	data.Set("code_verifier", codeVerifier)
	data.Set("redirect_uri", c.cfg.RedirectURI)
	if c.cfg.Audience != "" {
		data.Set("audience", c.cfg.Audience)
	}

	return c.postToken(ctx, "exchange code", data)
}

// Refresh 刷新访问令牌
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("client_id", c.cfg.ClientID)
	data.Set("refresh_token", refreshToken)

	tok, err := c.postToken(ctx, "refresh token", data)
	if err != nil {
		return nil, err
	}
	// 部分响应不返回新的 refresh_token
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

func (c *OAuthClient) postToken(ctx context.Context, op string, data url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthHost+"/oauth2/v3/token", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &ProviderError{Op: op, Status: resp.StatusCode, Body: string(body)}
	}

	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%s: empty access token", op)
	}

	tok.CreatedAt = c.now()
	return &tok, nil
}

// CodeChallenge S256: base64url(sha256(verifier))
func CodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomURLSafe(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
