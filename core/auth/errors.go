package auth

import "errors"

// Error 认证错误，Code 与前端约定的错误码一致
type Error struct {
	Code string
}

func (e *Error) Error() string { return e.Code }

// Message 返回面向用户的提示
func (e *Error) Message() string {
	if msg, ok := friendlyMessages[e.Code]; ok {
		return msg
	}
	return defaultMessage
}

var (
	ErrUserNotFound            = &Error{Code: "auth/user-not-found"}
	ErrWrongPassword           = &Error{Code: "auth/wrong-password"}
	ErrEmailInUse              = &Error{Code: "auth/email-already-in-use"}
	ErrWeakPassword            = &Error{Code: "auth/weak-password"}
	ErrInvalidEmail            = &Error{Code: "auth/invalid-email"}
	ErrSignInCancelled         = &Error{Code: "auth/popup-closed-by-user"}
	ErrAccountExistsDifferent  = &Error{Code: "auth/account-exists-with-different-credential"}
	ErrNetworkRequestFailed    = &Error{Code: "auth/network-request-failed"}
	ErrTooManyRequests         = &Error{Code: "auth/too-many-requests"}
	ErrProviderAlreadyLinked   = &Error{Code: "auth/provider-already-linked"}
	ErrCredentialAlreadyInUse  = &Error{Code: "auth/credential-already-in-use"}
	ErrRequiresRecentLogin     = &Error{Code: "auth/requires-recent-login"}
	ErrUnsupportedProvider     = &Error{Code: "auth/unsupported-provider"}
	ErrProviderNotConfigured   = &Error{Code: "auth/operation-not-allowed"}
	ErrInvalidState            = &Error{Code: "auth/invalid-state"}
	ErrInvalidToken            = &Error{Code: "auth/invalid-token"}
	ErrInvalidResetToken       = &Error{Code: "auth/invalid-action-code"}
	ErrNoSuchProvider          = &Error{Code: "auth/no-such-provider"}
	ErrLastSignInMethod        = &Error{Code: "auth/last-sign-in-method"}
	ErrMissingProviderIdentity = &Error{Code: "auth/missing-provider-identity"}
)

const defaultMessage = "Authentication failed. Please try again."

var friendlyMessages = map[string]string{
	"auth/user-not-found":                           "No account found with this email. Please sign up.",
	"auth/wrong-password":                           "Incorrect password. Please try again or reset your password.",
	"auth/email-already-in-use":                     "An account already exists with this email. Please sign in instead.",
	"auth/weak-password":                            "Password is too weak. Please use at least 6 characters.",
	"auth/invalid-email":                            "Invalid email address. Please check and try again.",
	"auth/popup-closed-by-user":                     "Sign-in was cancelled. Please try again.",
	"auth/account-exists-with-different-credential": "An account already exists with the same email but different sign-in credentials. Try signing in using a different method.",
	"auth/network-request-failed":                   "Network error. Please check your internet connection and try again.",
	"auth/too-many-requests":                        "Too many failed attempts. Please try again later or reset your password.",
	"auth/provider-already-linked":                  "This account is already linked to your profile.",
	"auth/credential-already-in-use":                "These credentials are already associated with another account.",
	"auth/requires-recent-login":                    "This operation requires a more recent login. Please sign out and sign in again.",
	"auth/unsupported-provider":                     "This sign-in provider is not supported.",
	"auth/operation-not-allowed":                    "This sign-in method is not enabled.",
	"auth/invalid-state":                            "The sign-in session expired. Please try again.",
	"auth/invalid-token":                            "Your session has expired. Please sign in again.",
	"auth/invalid-action-code":                      "The password reset link is invalid or has expired.",
	"auth/no-such-provider":                         "This provider is not linked to your account.",
	"auth/last-sign-in-method":                      "You cannot unlink your only sign-in method.",
	"auth/missing-provider-identity":                "The provider did not return an account identity.",
}

// FriendlyMessage 把错误转换为用户可读的提示，非认证错误返回 fallback
func FriendlyMessage(err error, fallback string) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message()
	}
	if fallback != "" {
		return fallback
	}
	return defaultMessage
}
