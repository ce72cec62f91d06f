package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"Tunevault/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Profile 第三方账号的身份信息
type Profile struct {
	ProviderUserID string
	Email          string
	DisplayName    string
}

// Provider 一个 OAuth2 授权码流程的身份提供方
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	// Profile 用授权码换取令牌并获取用户身份
	Profile(ctx context.Context, code string) (*Profile, error)
}

// 没有在 x/oauth2 里内置端点的提供方使用这些默认值，可被配置覆盖
var defaultEndpoints = map[string]struct {
	authURL, tokenURL, userInfoURL string
}{
	"google":     {google.Endpoint.AuthURL, google.Endpoint.TokenURL, "https://openidconnect.googleapis.com/v1/userinfo"},
	"soundcloud": {"https://secure.soundcloud.com/authorize", "https://secure.soundcloud.com/oauth/token", "https://api.soundcloud.com/me"},
	"apple":      {"https://appleid.apple.com/auth/authorize", "https://appleid.apple.com/auth/token", ""},
	"deezer":     {"https://connect.deezer.com/oauth/auth.php", "https://connect.deezer.com/oauth/access_token.php", "https://api.deezer.com/user/me"},
}

// IsSupportedProvider reports whether name is one of config.SupportedProviders.
func IsSupportedProvider(name string) bool {
	for _, p := range config.SupportedProviders {
		if p == name {
			return true
		}
	}
	return false
}

// NewProviders 根据配置创建已启用的提供方
func NewProviders(cfgs map[string]config.OAuthProviderConfig) map[string]Provider {
	providers := make(map[string]Provider)
	for _, name := range config.SupportedProviders {
		pc, ok := cfgs[name]
		if !ok || !pc.Enabled() {
			continue
		}
		if name == "spotify" {
			providers[name] = newSpotifyProvider(pc)
			continue
		}
		providers[name] = NewOAuthProvider(name, pc)
	}
	return providers
}

// OAuthProvider 通用的 OAuth2 提供方：换取令牌后请求 userinfo 接口，
// 没有 userinfo 接口时读取 id_token 里的声明
type OAuthProvider struct {
	name        string
	conf        *oauth2.Config
	userInfoURL string
}

// NewOAuthProvider creates a generic provider; empty URLs fall back to defaults.
func NewOAuthProvider(name string, pc config.OAuthProviderConfig) *OAuthProvider {
	def := defaultEndpoints[name]
	authURL, tokenURL, userInfoURL := def.authURL, def.tokenURL, def.userInfoURL
	if pc.AuthURL != "" {
		authURL = pc.AuthURL
	}
	if pc.TokenURL != "" {
		tokenURL = pc.TokenURL
	}
	if pc.UserInfoURL != "" {
		userInfoURL = pc.UserInfoURL
	}

	return &OAuthProvider{
		name: name,
		conf: &oauth2.Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURL:  pc.RedirectURL,
			Scopes:       pc.Scopes,
			Endpoint:     oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
		},
		userInfoURL: userInfoURL,
	}
}

func (p *OAuthProvider) Name() string { return p.name }

func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.conf.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *OAuthProvider) Profile(ctx context.Context, code string) (*Profile, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s token exchange: %w", p.name, ErrNetworkRequestFailed)
	}

	var claims map[string]interface{}
	if p.userInfoURL != "" {
		claims, err = p.fetchUserInfo(ctx, tok)
		if err != nil {
			return nil, err
		}
	} else {
		claims, err = idTokenClaims(tok)
		if err != nil {
			return nil, err
		}
	}

	profile := profileFromClaims(claims)
	if profile.ProviderUserID == "" {
		return nil, ErrMissingProviderIdentity
	}
	return profile, nil
}

func (p *OAuthProvider) fetchUserInfo(ctx context.Context, tok *oauth2.Token) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	resp, err := p.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s userinfo: %w", p.name, ErrNetworkRequestFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s userinfo returned %d: %s", p.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var claims map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode %s userinfo: %w", p.name, err)
	}
	return claims, nil
}

// idTokenClaims 读取令牌端点直接返回的 id_token（TLS 信道内获得，不再校验签名）
func idTokenClaims(tok *oauth2.Token) (map[string]interface{}, error) {
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return nil, ErrMissingProviderIdentity
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("failed to parse id_token: %w", err)
	}
	return claims, nil
}

// profileFromClaims 兼容各家 userinfo 的字段命名
func profileFromClaims(claims map[string]interface{}) *Profile {
	return &Profile{
		ProviderUserID: firstClaim(claims, "sub", "id", "user_id", "urn"),
		Email:          firstClaim(claims, "email"),
		DisplayName:    firstClaim(claims, "name", "display_name", "full_name", "username", "firstname"),
	}
}

func firstClaim(claims map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := claims[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			// deezer/soundcloud 的数字 ID
			return fmt.Sprintf("%.0f", v)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// spotifyProvider 通过 zmb3/spotify 获取当前用户
type spotifyProvider struct {
	auth *spotifyauth.Authenticator
}

func newSpotifyProvider(pc config.OAuthProviderConfig) *spotifyProvider {
	opts := []spotifyauth.AuthenticatorOption{
		spotifyauth.WithClientID(pc.ClientID),
		spotifyauth.WithClientSecret(pc.ClientSecret),
		spotifyauth.WithRedirectURL(pc.RedirectURL),
		spotifyauth.WithScopes(pc.Scopes...),
	}
	return &spotifyProvider{auth: spotifyauth.New(opts...)}
}

func (p *spotifyProvider) Name() string { return "spotify" }

func (p *spotifyProvider) AuthCodeURL(state string) string {
	return p.auth.AuthURL(state)
}

func (p *spotifyProvider) Profile(ctx context.Context, code string) (*Profile, error) {
	tok, err := p.auth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("spotify token exchange: %w", ErrNetworkRequestFailed)
	}

	client := spotify.New(p.auth.Client(ctx, tok))
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("spotify current user: %w", ErrNetworkRequestFailed)
	}
	if user.ID == "" {
		return nil, ErrMissingProviderIdentity
	}
	return &Profile{
		ProviderUserID: user.ID,
		Email:          user.Email,
		DisplayName:    user.DisplayName,
	}, nil
}
