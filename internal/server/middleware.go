package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/rentflow/internal/orgcontext"
)

const (
	HeaderOrg      = "X-Org-ID"
	HeaderDraftKey = "X-Draft-Key"

	contextOrgIDKey = "org_id"
)

// OrgContext resolves the tenant from the X-Org-ID header, falling back to
// the configured default organization.
func (s *Server) OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOrg))

		var orgID snowflake.ID
		switch {
		case raw != "":
			parsed, ok := orgcontext.ParseOrgID(raw)
			if !ok {
				AbortWithError(c, newValidationError("organization", "invalid_organization", "invalid X-Org-ID header"))
				return
			}
			orgID = parsed
		case s.cfg.DefaultOrgID > 0:
			orgID = snowflake.ID(s.cfg.DefaultOrgID)
		default:
			AbortWithError(c, ErrOrgRequired)
			return
		}

		c.Request = c.Request.WithContext(orgcontext.WithOrgID(c.Request.Context(), orgID))
		c.Set(contextOrgIDKey, orgID.String())
		c.Next()
	}
}
