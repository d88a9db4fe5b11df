package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/rentflow/internal/observability/logger"
	"github.com/smallbiznis/rentflow/internal/orgcontext"
	"go.uber.org/zap"
)

const rateLimitReasonPreviewOrg = "preview-org-rate"

// PreviewRateLimit throttles invoice previews per organization. Previews
// are recomputed on every keystroke of the invoice form.
func (s *Server) PreviewRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.guard.PreviewLimited() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		orgID, ok := orgcontext.OrgIDFromContext(ctx)
		if !ok {
			AbortWithError(c, ErrOrgRequired)
			return
		}

		result, err := s.guard.AllowPreview(ctx, orgID.String())
		if err != nil {
			logger.FromContext(ctx).Warn("invoice preview rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			logger.FromContext(ctx).Warn("invoice preview rate limit exceeded",
				zap.String("reason", rateLimitReasonPreviewOrg),
				zap.String("endpoint", normalizeRateLimitEndpoint(c)),
			)
			c.Header("Retry-After", retryAfterSeconds(result.RetryAfter.Seconds()))
			c.Header("X-Rate-Limited-Reason", rateLimitReasonPreviewOrg)
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}

func retryAfterSeconds(seconds float64) string {
	wait := int(math.Ceil(seconds))
	if wait < 1 {
		wait = 1
	}
	return strconv.Itoa(wait)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
