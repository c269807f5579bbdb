package api

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/garagehq/vhc/internal/repair"
)

type approveRequest struct {
	OptionID *string `json:"option_id"`
}

type approveAllRequest struct {
	Selections map[string]string `json:"selections"`
}

type signRequest struct {
	Signature string `json:"signature" binding:"required"`
}

// bindOptionalJSON binds the body if there is one.
func bindOptionalJSON(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func handlePortal(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.Portal(c.Request.Context(), c.Param("token"))
		reply(c, v, err)
	}
}

func handleApprove(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req approveRequest
		if err := bindOptionalJSON(c, &req); err != nil {
			badRequest(c, err)
			return
		}
		item, err := svc.Approve(c.Request.Context(), c.Param("token"), c.Param("itemId"), req.OptionID)
		reply(c, gin.H{"item": item}, err)
	}
}

func handleDeclineOnline(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		item, err := svc.DeclineOnline(c.Request.Context(), c.Param("token"), c.Param("itemId"))
		reply(c, gin.H{"item": item}, err)
	}
}

func handleApproveAll(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req approveAllRequest
		if err := bindOptionalJSON(c, &req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.ApproveAll(c.Request.Context(), c.Param("token"), req.Selections)
		reply(c, res, err)
	}
}

func handleDeclineAllOnline(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.DeclineAllOnline(c.Request.Context(), c.Param("token"))
		reply(c, res, err)
	}
}

func handleSign(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req signRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		receipt, err := svc.Sign(c.Request.Context(), c.Param("token"), repair.SignInput{
			Data:      req.Signature,
			ClientIP:  c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		reply(c, receipt, err)
	}
}
