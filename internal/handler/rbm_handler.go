package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quantrix-platform/quantrix-rbm/internal/repository"
	"github.com/quantrix-platform/quantrix-rbm/internal/service"
)

// RBMHandler RBM 提升接口
type RBMHandler struct {
	rbmService *service.RBMService
}

// NewRBMHandler 创建 RBM 接口
func NewRBMHandler(rbmService *service.RBMService) *RBMHandler {
	return &RBMHandler{rbmService: rbmService}
}

// RegisterRoutes 注册路由
func (h *RBMHandler) RegisterRoutes(r *gin.RouterGroup) {
	rbm := r.Group("/rbm")
	{
		rbm.POST("/request", h.RequestElevation)
		rbm.GET("/status/:campaign_id", h.Status)
		rbm.GET("/permissions/:actor_id", h.Permissions)
		rbm.GET("/config", h.Config)
		rbm.POST("/deactivate", h.Deactivate)
		rbm.GET("/events/:campaign_id", h.ListEvents)
	}
}

// RequestElevationRequest 提升请求体
type RequestElevationRequest struct {
	CampaignID string  `json:"campaign_id" binding:"required"`
	Multiplier float64 `json:"multiplier" binding:"required"`
	ActorID    string  `json:"actor_id"`
}

// RequestElevation 发起 RBM 提升请求
// 拒绝是正常的 200 响应 (approved=false)，只有基础设施故障返回 500
func (h *RBMHandler) RequestElevation(c *gin.Context) {
	var req RequestElevationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	resp, err := h.rbmService.RequestElevation(c.Request.Context(), &service.ElevationRequest{
		CampaignID: req.CampaignID,
		Multiplier: req.Multiplier,
		ActorID:    req.ActorID,
	})
	if err != nil {
		InternalError(c, "elevation request failed: "+err.Error())
		return
	}

	Success(c, resp)
}

// Status 查询 campaign 的 RBM 状态
func (h *RBMHandler) Status(c *gin.Context) {
	campaignID := c.Param("campaign_id")
	if campaignID == "" {
		BadRequest(c, "campaign_id is required")
		return
	}

	status, err := h.rbmService.Status(c.Request.Context(), campaignID)
	if err != nil {
		if errors.Is(err, repository.ErrCampaignNotFound) {
			NotFound(c, "campaign not found")
			return
		}
		InternalError(c, "query status failed: "+err.Error())
		return
	}

	Success(c, status)
}

// Permissions 查询操作者的 RBM 能力
func (h *RBMHandler) Permissions(c *gin.Context) {
	actorID := c.Param("actor_id")
	if actorID == "" {
		BadRequest(c, "actor_id is required")
		return
	}

	perms, err := h.rbmService.Permissions(c.Request.Context(), actorID)
	if err != nil {
		InternalError(c, "resolve permissions failed: "+err.Error())
		return
	}

	Success(c, perms)
}

// Config 查询系统级 RBM 配置
func (h *RBMHandler) Config(c *gin.Context) {
	Success(c, h.rbmService.Config())
}

// DeactivateRequest 停用请求体
type DeactivateRequest struct {
	CampaignID string `json:"campaign_id" binding:"required"`
	ActorID    string `json:"actor_id" binding:"required"`
}

// Deactivate 手动停用 RBM
func (h *RBMHandler) Deactivate(c *gin.Context) {
	var req DeactivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}

	resp, err := h.rbmService.Deactivate(c.Request.Context(), req.CampaignID, req.ActorID)
	if err != nil {
		InternalError(c, "deactivate failed: "+err.Error())
		return
	}

	Success(c, resp)
}

// ListEvents 分页查询 campaign 的审计事件
func (h *RBMHandler) ListEvents(c *gin.Context) {
	campaignID := c.Param("campaign_id")
	if campaignID == "" {
		BadRequest(c, "campaign_id is required")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	pagination := repository.NewPagination(page, pageSize)

	events, total, err := h.rbmService.ListEvents(c.Request.Context(), campaignID, pagination)
	if err != nil {
		InternalError(c, "list events failed: "+err.Error())
		return
	}

	SuccessPaged(c, events, pagination.Page, pagination.PageSize, total)
}
