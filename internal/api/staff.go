package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garagehq/vhc/internal/repair"
)

type optionRequest struct {
	Name          string          `json:"name" binding:"required"`
	Description   string          `json:"description"`
	Labour        decimal.Decimal `json:"labour"`
	Parts         decimal.Decimal `json:"parts"`
	VAT           decimal.Decimal `json:"vat"`
	IsRecommended bool            `json:"is_recommended"`
}

type createItemRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	IsGroup     bool            `json:"is_group"`
	ParentID    string          `json:"parent_id"`
	Source      string          `json:"source" binding:"omitempty,oneof=manual manufacturer"`
	Severity    string          `json:"severity" binding:"omitempty,oneof=red amber green"`
	Labour      decimal.Decimal `json:"labour"`
	Parts       decimal.Decimal `json:"parts"`
	VAT         decimal.Decimal `json:"vat"`
	FindingIDs  []string        `json:"finding_ids"`
	Options     []optionRequest `json:"options" binding:"dive"`
}

type progressRequest struct {
	LabourStatus     *string `json:"labour_status" binding:"omitempty,oneof=pending in_progress complete"`
	PartsStatus      *string `json:"parts_status" binding:"omitempty,oneof=pending in_progress complete"`
	NoLabourRequired *bool   `json:"no_labour_required"`
	NoPartsRequired  *bool   `json:"no_parts_required"`
}

type selectOptionRequest struct {
	OptionID string `json:"option_id" binding:"required"`
}

type deferRequest struct {
	DeferredUntil string `json:"deferred_until"`
	Notes         string `json:"notes"`
}

type reasonRequest struct {
	ReasonID string `json:"reason_id"`
	Notes    string `json:"notes"`
}

type bulkDeferRequest struct {
	ItemIDs []string `json:"item_ids"`
	deferRequest
}

type bulkReasonRequest struct {
	ItemIDs []string `json:"item_ids"`
	reasonRequest
}

// parseDeferredUntil accepts an RFC 3339 timestamp or a calendar date,
// which is read as midnight UTC.
func parseDeferredUntil(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("deferred_until %q is not a date or RFC 3339 timestamp", s)
	}
	return t, nil
}

func (r deferRequest) input() (repair.DeferInput, error) {
	until, err := parseDeferredUntil(r.DeferredUntil)
	if err != nil {
		return repair.DeferInput{}, err
	}
	return repair.DeferInput{Until: until, Notes: r.Notes}, nil
}

func (r reasonRequest) input() repair.ReasonInput {
	return repair.ReasonInput{ReasonID: r.ReasonID, Notes: r.Notes}
}

func handleDetail(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := svc.Detail(c.Request.Context(), actor(c), c.Param("id"))
		reply(c, d, err)
	}
}

func handleCreateItem(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		in := repair.CreateItemInput{
			Name:        req.Name,
			Description: req.Description,
			IsGroup:     req.IsGroup,
			ParentID:    req.ParentID,
			Source:      req.Source,
			Severity:    req.Severity,
			Labour:      req.Labour,
			Parts:       req.Parts,
			VAT:         req.VAT,
			FindingIDs:  req.FindingIDs,
		}
		for _, o := range req.Options {
			in.Options = append(in.Options, repair.OptionInput{
				Name:          o.Name,
				Description:   o.Description,
				Labour:        o.Labour,
				Parts:         o.Parts,
				VAT:           o.VAT,
				IsRecommended: o.IsRecommended,
			})
		}
		v, err := svc.CreateRepairItem(c.Request.Context(), actor(c), c.Param("id"), in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"item": v})
	}
}

func handleProgress(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req progressRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		v, err := svc.UpdateProgress(c.Request.Context(), actor(c), c.Param("id"), c.Param("itemId"), repair.ProgressInput{
			LabourStatus:     req.LabourStatus,
			PartsStatus:      req.PartsStatus,
			NoLabourRequired: req.NoLabourRequired,
			NoPartsRequired:  req.NoPartsRequired,
		})
		replyItem(c, v, err)
	}
}

func handleSelectOption(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req selectOptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		v, err := svc.SelectOption(c.Request.Context(), actor(c), c.Param("id"), c.Param("itemId"), req.OptionID)
		replyItem(c, v, err)
	}
}

func handleWorkComplete(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.MarkWorkComplete(c.Request.Context(), actor(c), c.Param("id"), c.Param("itemId"))
		replyItem(c, v, err)
	}
}

func handleClearWorkComplete(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.ClearWorkComplete(c.Request.Context(), actor(c), c.Param("id"), c.Param("itemId"))
		replyItem(c, v, err)
	}
}

func handleAuthorise(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.Authorise(c.Request.Context(), actor(c), c.Param("id"), c.Param("itemId"))
		replyItem(c, v, err)
	}
}

func handleDefer(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req deferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		in, err := req.input()
		if err != nil {
			badRequest(c, err)
			return
		}
		v, err := svc.Defer(c.Request.Context(), actor(c), c.Param("id"), c.Param("itemId"), in)
		replyItem(c, v, err)
	}
}

func handleDecline(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reasonRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		v, err := svc.Decline(c.Request.Context(), actor(c), c.Param("id"), c.Param("itemId"), req.input())
		replyItem(c, v, err)
	}
}

func handleDelete(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reasonRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		v, err := svc.Delete(c.Request.Context(), actor(c), c.Param("id"), c.Param("itemId"), req.input())
		replyItem(c, v, err)
	}
}

func handleReset(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.Reset(c.Request.Context(), actor(c), c.Param("id"), c.Param("itemId"))
		replyItem(c, v, err)
	}
}

func handleDeferAll(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bulkDeferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		in, err := req.input()
		if err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.DeferAll(c.Request.Context(), actor(c), c.Param("id"), req.ItemIDs, in)
		reply(c, res, err)
	}
}

func handleDeclineAll(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bulkReasonRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.DeclineAll(c.Request.Context(), actor(c), c.Param("id"), req.ItemIDs, req.input())
		reply(c, res, err)
	}
}

func handleIssueToken(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		grant, err := svc.IssuePublicToken(c.Request.Context(), actor(c), c.Param("id"))
		reply(c, grant, err)
	}
}

func handleClose(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Close(c.Request.Context(), actor(c), c.Param("id"))
		reply(c, res, err)
	}
}

type reasonView struct {
	ID            string `json:"id"`
	Code          string `json:"code"`
	Label         string `json:"label"`
	RequiresNotes bool   `json:"requires_notes"`
}

func handleDeclinedReasons(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		reasons, err := svc.ListDeclinedReasons(c.Request.Context(), actor(c))
		if err != nil {
			respondError(c, err)
			return
		}
		out := make([]reasonView, 0, len(reasons))
		for _, r := range reasons {
			out = append(out, reasonView{ID: r.ID, Code: r.Code, Label: r.Label, RequiresNotes: r.RequiresNotes})
		}
		c.JSON(http.StatusOK, gin.H{"reasons": out})
	}
}

func handleDeletedReasons(svc *repair.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		reasons, err := svc.ListDeletedReasons(c.Request.Context(), actor(c))
		if err != nil {
			respondError(c, err)
			return
		}
		out := make([]reasonView, 0, len(reasons))
		for _, r := range reasons {
			out = append(out, reasonView{ID: r.ID, Code: r.Code, Label: r.Label, RequiresNotes: r.RequiresNotes})
		}
		c.JSON(http.StatusOK, gin.H{"reasons": out})
	}
}
