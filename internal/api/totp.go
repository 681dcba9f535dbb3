package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
)

// TOTPHeader carries the one-time code for guarded routes.
const TOTPHeader = "X-TOTP-Code"

// RequireTOTP rejects requests without a valid code for secret. An empty
// secret disables the check.
func RequireTOTP(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if msg := totpError(c, secret); msg != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}
		c.Next()
	}
}

// totpError returns why the request's code is rejected, or "" when it is
// accepted or no secret is set.
func totpError(c *gin.Context, secret string) string {
	if secret == "" {
		return ""
	}
	code := c.GetHeader(TOTPHeader)
	if code == "" {
		return "missing " + TOTPHeader + " header"
	}
	if !totp.Validate(code, secret) {
		return "invalid TOTP code"
	}
	return ""
}
