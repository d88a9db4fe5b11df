package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type setSettingRequest struct {
	Value string `json:"value"`
}

func (s *Server) ListSettings(c *gin.Context) {
	items, err := s.settingSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetSetting(c *gin.Context) {
	item, err := s.settingSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("key")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) SetSetting(c *gin.Context) {
	var req setSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.settingSvc.Set(c.Request.Context(), strings.TrimSpace(c.Param("key")), req.Value)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DeleteSetting(c *gin.Context) {
	if err := s.settingSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("key"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
