package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	memberdomain "github.com/smallbiznis/studioledger/internal/member/domain"
)

func (s *Server) CreateMember(c *gin.Context) {
	var req memberdomain.CreateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.memberSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetMemberByID(c *gin.Context) {
	resp, err := s.memberSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
