package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	meterreadingdomain "github.com/smallbiznis/rentflow/internal/meterreading/domain"
)

func (s *Server) RecordMeterReading(c *gin.Context) {
	var req meterreadingdomain.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.readingSvc.Record(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListMeterReadings(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	req := meterreadingdomain.ListRequest{
		RoomID:    strings.TrimSpace(c.Query("room_id")),
		ServiceID: strings.TrimSpace(c.Query("service_id")),
	}
	if limit != nil {
		req.Limit = *limit
	}

	items, err := s.readingSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetLatestMeterReading(c *gin.Context) {
	item, err := s.readingSvc.Latest(c.Request.Context(),
		strings.TrimSpace(c.Param("room_id")),
		strings.TrimSpace(c.Param("service_id")),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}
