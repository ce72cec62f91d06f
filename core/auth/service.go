package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"Tunevault/cache"
	"Tunevault/config"
	"Tunevault/logger"
	"Tunevault/model"
	"Tunevault/repository"

	"github.com/google/uuid"
)

// SessionStore 保存吊销列表、重置令牌和 OAuth state，由 cache.TokenStore 实现
type SessionStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	SaveResetToken(ctx context.Context, token, userID string, ttl time.Duration) error
	ConsumeResetToken(ctx context.Context, token string) (string, error)
	SaveState(ctx context.Context, state string, data cache.OAuthState, ttl time.Duration) error
	ConsumeState(ctx context.Context, state string) (*cache.OAuthState, error)
}

// ResetSender 投递重置密码令牌，默认实现只写日志
type ResetSender func(ctx context.Context, email, token string) error

// Session 登录成功后返回给客户端的会话
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *model.User `json:"user"`
}

// ProviderInfo 提供方是否可用
type ProviderInfo struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Service 身份与会话服务
type Service struct {
	users       repository.UserRepository
	sessions    SessionStore
	tokens      *TokenManager
	providers   map[string]Provider
	sendReset   ResetSender
	minPassword int
	resetTTL    time.Duration
	stateTTL    time.Duration
	now         func() time.Time
}

// NewService creates the identity service.
func NewService(cfg *config.Config, users repository.UserRepository, sessions SessionStore, providers map[string]Provider) *Service {
	if providers == nil {
		providers = map[string]Provider{}
	}
	return &Service{
		users:       users,
		sessions:    sessions,
		tokens:      NewTokenManager(cfg.JWTSecret, cfg.JWTTTL),
		providers:   providers,
		sendReset:   logResetToken,
		minPassword: cfg.MinPasswordSize,
		resetTTL:    cfg.ResetTokenTTL,
		stateTTL:    cfg.OAuthStateTTL,
		now:         time.Now,
	}
}

// SetResetSender 替换重置令牌的投递方式
func (s *Service) SetResetSender(fn ResetSender) {
	s.sendReset = fn
}

func logResetToken(ctx context.Context, email, token string) error {
	logger.Info("[Auth] 已生成重置密码令牌，等待外部投递",
		logger.String("email", email),
		logger.String("tokenPrefix", token[:8]))
	return nil
}

// SignUpWithEmail 邮箱注册
func (s *Service) SignUpWithEmail(ctx context.Context, email, password, displayName string) (*Session, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password, s.minPassword); err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, ErrEmailInUse
		}
		return nil, err
	}

	logger.Info("[SignUp] 用户注册成功", logger.String("userId", user.ID))
	return s.newSession(user)
}

// SignInWithEmail 邮箱密码登录
func (s *Service) SignInWithEmail(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.HasPassword() {
		// 该邮箱只用第三方方式登录过
		return nil, ErrAccountExistsDifferent
	}
	if !CheckPasswordHash(password, user.PasswordHash) {
		logger.Warn("[SignIn] 密码验证失败", logger.String("userId", user.ID))
		return nil, ErrWrongPassword
	}

	return s.newSession(user)
}

// ResetPassword 生成一次性重置令牌
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return err
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	token, err := randomToken()
	if err != nil {
		return err
	}
	if err := s.sessions.SaveResetToken(ctx, token, user.ID, s.resetTTL); err != nil {
		return err
	}
	return s.sendReset(ctx, user.Email, token)
}

// ConfirmPasswordReset 使用重置令牌设置新密码，令牌只能用一次
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if err := ValidatePassword(newPassword, s.minPassword); err != nil {
		return err
	}
	userID, err := s.sessions.ConsumeResetToken(ctx, token)
	if err != nil {
		return err
	}
	if userID == "" {
		return ErrInvalidResetToken
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	logger.Info("[Reset] 密码已重置", logger.String("userId", userID))
	return nil
}

// SignInWithProvider 返回第三方授权地址
func (s *Service) SignInWithProvider(ctx context.Context, provider string) (string, error) {
	return s.startFlow(ctx, provider, "")
}

// LinkAccountWithProvider 为已登录用户发起绑定，返回授权地址
func (s *Service) LinkAccountWithProvider(ctx context.Context, userID, provider string) (string, error) {
	links, err := s.users.ListLinks(ctx, userID)
	if err != nil {
		return "", err
	}
	for _, l := range links {
		if l.Provider == provider {
			return "", ErrProviderAlreadyLinked
		}
	}
	return s.startFlow(ctx, provider, userID)
}

func (s *Service) startFlow(ctx context.Context, provider, linkUserID string) (string, error) {
	p, err := s.provider(provider)
	if err != nil {
		return "", err
	}
	state, err := randomToken()
	if err != nil {
		return "", err
	}
	data := cache.OAuthState{Provider: provider, LinkUserID: linkUserID}
	if err := s.sessions.SaveState(ctx, state, data, s.stateTTL); err != nil {
		return "", err
	}
	return p.AuthCodeURL(state), nil
}

// CompleteProviderSignIn 处理回调：校验 state，换取身份，然后登录、注册或绑定
func (s *Service) CompleteProviderSignIn(ctx context.Context, provider, state, code string) (*Session, error) {
	p, err := s.provider(provider)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, ErrSignInCancelled
	}

	st, err := s.sessions.ConsumeState(ctx, state)
	if err != nil {
		return nil, err
	}
	if st == nil || st.Provider != provider {
		return nil, ErrInvalidState
	}

	profile, err := p.Profile(ctx, code)
	if err != nil {
		return nil, err
	}

	existing, err := s.users.GetLink(ctx, provider, profile.ProviderUserID)
	if err != nil {
		return nil, err
	}

	if st.LinkUserID != "" {
		return s.completeLink(ctx, st.LinkUserID, provider, profile, existing)
	}

	if existing != nil {
		user, err := s.users.GetUserByID(ctx, existing.UserID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, ErrUserNotFound
		}
		return s.newSession(user)
	}

	return s.createFederatedUser(ctx, provider, profile)
}

func (s *Service) completeLink(ctx context.Context, userID, provider string, profile *Profile, existing *model.LinkedAccount) (*Session, error) {
	if existing != nil {
		if existing.UserID == userID {
			return nil, ErrProviderAlreadyLinked
		}
		return nil, ErrCredentialAlreadyInUse
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	link := &model.LinkedAccount{
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: profile.ProviderUserID,
		Email:          profile.Email,
		LinkedAt:       s.now().UTC(),
	}
	if err := s.users.CreateLink(ctx, link); err != nil {
		if errors.Is(err, repository.ErrDuplicateLink) {
			return nil, ErrProviderAlreadyLinked
		}
		return nil, err
	}

	logger.Info("[Link] 第三方账号绑定成功",
		logger.String("userId", userID),
		logger.String("provider", provider))
	return s.newSession(user)
}

func (s *Service) createFederatedUser(ctx context.Context, provider string, profile *Profile) (*Session, error) {
	email := NormalizeEmail(profile.Email)
	if email == "" {
		// 部分提供方不返回邮箱，用占位地址保证唯一
		email = fmt.Sprintf("%s+%s@users.noreply.tunevault", provider, profile.ProviderUserID)
	} else {
		other, err := s.users.GetUserByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if other != nil {
			return nil, ErrAccountExistsDifferent
		}
	}

	now := s.now().UTC()
	user := &model.User{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: profile.DisplayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	link := &model.LinkedAccount{
		UserID:         user.ID,
		Provider:       provider,
		ProviderUserID: profile.ProviderUserID,
		Email:          profile.Email,
		LinkedAt:       now,
	}
	// 用户和绑定要么都写入，要么都不写入
	if err := s.users.CreateUserWithLink(ctx, user, link); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateUser):
			return nil, ErrAccountExistsDifferent
		case errors.Is(err, repository.ErrDuplicateLink):
			return nil, ErrCredentialAlreadyInUse
		}
		return nil, err
	}

	logger.Info("[SignIn] 通过第三方账号创建用户",
		logger.String("userId", user.ID),
		logger.String("provider", provider))
	return s.newSession(user)
}

// UnlinkProvider 解绑第三方账号，不允许移除最后一种登录方式
func (s *Service) UnlinkProvider(ctx context.Context, userID, provider string) error {
	if !IsSupportedProvider(provider) {
		return ErrUnsupportedProvider
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	links, err := s.users.ListLinks(ctx, userID)
	if err != nil {
		return err
	}

	found := false
	for _, l := range links {
		if l.Provider == provider {
			found = true
			break
		}
	}
	if !found {
		return ErrNoSuchProvider
	}
	if !user.HasPassword() && len(links) == 1 {
		return ErrLastSignInMethod
	}

	if err := s.users.DeleteLink(ctx, userID, provider); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoSuchProvider
		}
		return err
	}
	logger.Info("[Unlink] 已解绑第三方账号",
		logger.String("userId", userID),
		logger.String("provider", provider))
	return nil
}

// Links 用户已绑定的第三方账号
func (s *Service) Links(ctx context.Context, userID string) ([]*model.LinkedAccount, error) {
	return s.users.ListLinks(ctx, userID)
}

// SignOut 吊销令牌直到其过期
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return err
	}
	return s.sessions.Revoke(ctx, claims.ID, s.tokens.Remaining(claims))
}

// Authenticate 校验令牌签名、过期时间以及是否已登出
func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.sessions.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// CurrentUser 返回令牌对应的用户
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// Providers 列出所有支持的提供方及其是否已配置
func (s *Service) Providers() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(config.SupportedProviders))
	for _, name := range config.SupportedProviders {
		_, ok := s.providers[name]
		out = append(out, ProviderInfo{Name: name, Enabled: ok})
	}
	return out
}

func (s *Service) provider(name string) (Provider, error) {
	if !IsSupportedProvider(name) {
		return nil, ErrUnsupportedProvider
	}
	p, ok := s.providers[name]
	if !ok {
		return nil, ErrProviderNotConfigured
	}
	return p, nil
}

func (s *Service) newSession(user *model.User) (*Session, error) {
	token, claims, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: user}, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
