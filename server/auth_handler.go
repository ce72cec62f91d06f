package server

import (
	"net/http"

	"Tunevault/core/auth"
	"Tunevault/logger"
	"Tunevault/model"

	"github.com/gorilla/mux"
)

// SignUpRequest 邮箱注册请求
type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// SignInRequest 邮箱登录请求
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUpHandler 邮箱注册
func (h *APIHandler) SignUpHandler(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := h.auth.SignUpWithEmail(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		logger.Warn("[SignUp] 注册失败", logger.ErrorField(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// SignInHandler 邮箱登录
func (h *APIHandler) SignInHandler(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := h.auth.SignInWithEmail(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	logger.Info("[SignIn] 登录成功", logger.String("userId", session.User.ID))
	writeJSON(w, http.StatusOK, session)
}

// ResetPasswordHandler 申请重置密码
func (h *APIHandler) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset email sent"})
}

// ConfirmResetHandler 用重置令牌设置新密码
func (h *APIHandler) ConfirmResetHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset"})
}

// SignOutHandler 登出并吊销当前令牌
func (h *APIHandler) SignOutHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.SignOut(r.Context(), tokenFromContext(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MeHandler 返回当前用户
func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := h.auth.CurrentUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ProvidersHandler 列出第三方登录方式
func (h *APIHandler) ProvidersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.auth.Providers())
}

// ProviderStartHandler 返回授权地址；?redirect=1 时直接跳转
func (h *APIHandler) ProviderStartHandler(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	authURL, err := h.auth.SignInWithProvider(r.Context(), provider)
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("redirect") == "1" {
		http.Redirect(w, r, authURL, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": authURL})
}

// ProviderCallbackHandler 第三方授权回调
func (h *APIHandler) ProviderCallbackHandler(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	q := r.URL.Query()
	if q.Get("error") != "" {
		logger.Info("[OAuth] 用户取消授权",
			logger.String("provider", provider),
			logger.String("error", q.Get("error")))
		writeError(w, auth.ErrSignInCancelled)
		return
	}

	session, err := h.auth.CompleteProviderSignIn(r.Context(), provider, q.Get("state"), q.Get("code"))
	if err != nil {
		logger.Warn("[OAuth] 第三方登录失败", logger.String("provider", provider), logger.ErrorField(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// LinkProviderHandler 为当前用户发起第三方账号绑定
func (h *APIHandler) LinkProviderHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	authURL, err := h.auth.LinkAccountWithProvider(r.Context(), userID, mux.Vars(r)["provider"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": authURL})
}

// UnlinkProviderHandler 解除绑定
func (h *APIHandler) UnlinkProviderHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.auth.UnlinkProvider(r.Context(), userID, mux.Vars(r)["provider"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LinksHandler 已绑定的第三方账号
func (h *APIHandler) LinksHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	links, err := h.auth.Links(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if links == nil {
		links = []*model.LinkedAccount{}
	}
	writeJSON(w, http.StatusOK, links)
}
