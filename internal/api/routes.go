package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garagehq/vhc/internal/repair"
)

// registerRoutes sets up the staff and public routes on the Gin router.
func registerRoutes(router *gin.Engine, opts RouterOpts) {
	svc := opts.Service

	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	staff := router.Group("/api", requireStaff(opts.JWTSecret))
	hc := staff.Group("/health-checks/:id")
	hc.GET("", handleDetail(svc))
	hc.POST("/repair-items", handleCreateItem(svc))
	hc.POST("/repair-items/defer-all", handleDeferAll(svc))
	hc.POST("/repair-items/decline-all", handleDeclineAll(svc))
	hc.POST("/public-token", handleIssueToken(svc))
	hc.POST("/close", handleClose(svc))

	item := hc.Group("/repair-items/:itemId")
	item.PATCH("/progress", handleProgress(svc))
	item.POST("/option", handleSelectOption(svc))
	item.POST("/work-complete", handleWorkComplete(svc))
	item.DELETE("/work-complete", handleClearWorkComplete(svc))
	item.POST("/authorise", handleAuthorise(svc))
	item.POST("/defer", handleDefer(svc))
	item.POST("/decline", handleDecline(svc))
	item.POST("/delete", handleDelete(svc))
	item.POST("/reset", handleReset(svc))

	staff.GET("/reasons/declined", handleDeclinedReasons(svc))
	staff.GET("/reasons/deleted", handleDeletedReasons(svc))

	public := router.Group("/public/:token")
	public.GET("", handlePortal(svc))
	public.POST("/items/:itemId/approve", handleApprove(svc))
	public.POST("/items/:itemId/decline", handleDeclineOnline(svc))
	public.POST("/approve-all", handleApproveAll(svc))
	public.POST("/decline-all", handleDeclineAllOnline(svc))
	public.POST("/sign", handleSign(svc))
}

// reply writes v with status 200, or err mapped to its status.
func reply(c *gin.Context, v interface{}, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// replyItem wraps a single item view so clients always read "item".
func replyItem(c *gin.Context, v *repair.ItemView, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": v})
}
