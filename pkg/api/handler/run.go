package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/conduit/pkg/api/dto"
	"github.com/LENAX/conduit/pkg/api/service"
	"github.com/LENAX/conduit/pkg/pipeline"
	"github.com/LENAX/conduit/pkg/storage"
)

// RunHandler 运行 API 处理器
type RunHandler struct {
	manager *service.RunManager
}

// NewRunHandler 创建RunHandler
func NewRunHandler(manager *service.RunManager) *RunHandler {
	return &RunHandler{manager: manager}
}

// Submit 提交运行
// POST /api/v1/runs
func (h *RunHandler) Submit(c *gin.Context) {
	var req dto.SubmitRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("请求参数错误: %v", err)))
		return
	}

	def, err := pipeline.Parse([]byte(req.Pipeline))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("流水线定义错误: %v", err)))
		return
	}

	runID, err := h.manager.Submit(def, service.RunOptions{
		Engine:           req.Engine,
		ConcurrencyLimit: req.ConcurrencyLimit,
		WorkerPoolSize:   req.WorkerPoolSize,
		Params:           req.Params,
	})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, service.ErrManagerClosed) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, dto.NewErrorResponse(status, fmt.Sprintf("提交运行失败: %v", err)))
		return
	}

	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(dto.SubmitResponse{
		RunID:   runID,
		Message: "运行已提交",
	}))
}

// List 列出所有运行
// GET /api/v1/runs
func (h *RunHandler) List(c *gin.Context) {
	var query dto.ListQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("查询参数错误: %v", err)))
		return
	}

	var items []dto.RunSummary
	for _, snap := range h.manager.List() {
		// 按状态过滤
		if query.Status != "" && string(snap.Status) != query.Status {
			continue
		}
		items = append(items, toSummary(snap))
	}

	// 分页
	limit := query.GetDefaultLimit()
	offset := query.Offset
	total := len(items)

	if offset >= total {
		items = []dto.RunSummary{}
	} else {
		end := offset + limit
		if end > total {
			end = total
		}
		items = items[offset:end]
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.RunSummary]{
		Total:   total,
		Items:   items,
		HasMore: offset+limit < total,
	}))
}

// Get 获取运行详情
// GET /api/v1/runs/:id
func (h *RunHandler) Get(c *gin.Context) {
	snap, ok := h.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "运行不存在"))
		return
	}

	progress := snap.Progress()
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.RunDetail{
		RunSummary: toSummary(snap),
		FailedNode: snap.FailedNode,
		Progress: dto.ProgressInfo{
			Total:     len(snap.Nodes),
			Completed: progress[service.NodeCompleted],
			Running:   progress[service.NodeRunning],
			Failed:    progress[service.NodeFailed],
			Pending:   progress[service.NodePending],
		},
	}))
}

// GetNodes 获取运行的所有节点状态
// GET /api/v1/runs/:id/nodes
func (h *RunHandler) GetNodes(c *gin.Context) {
	snap, ok := h.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, "运行不存在"))
		return
	}

	items := make([]dto.NodeDetail, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		item := dto.NodeDetail{
			Label:      n.Label,
			State:      n.State,
			StartedAt:  n.StartedAt,
			FinishedAt: n.FinishedAt,
		}
		if n.StartedAt != nil && n.FinishedAt != nil {
			item.Duration = formatDuration(n.FinishedAt.Sub(*n.StartedAt))
		}
		items = append(items, item)
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(items))
}

// GetResult 获取节点结果
// GET /api/v1/runs/:id/nodes/:label/result
func (h *RunHandler) GetResult(c *gin.Context) {
	runID, label := c.Param("id"), c.Param("label")

	res, err := h.manager.Result(c.Request.Context(), runID, label)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRunNotFound), errors.Is(err, service.ErrNodeNotFound), errors.Is(err, storage.ErrResultNotFound):
			c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, err.Error()))
		default:
			c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("读取结果失败: %v", err)))
		}
		return
	}

	payload, err := res.Serialize()
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("序列化结果失败: %v", err)))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NodeResult{
		RunID:  runID,
		Label:  label,
		Result: payload,
	}))
}

// Plan 计算流水线执行计划
// POST /api/v1/plan
func (h *RunHandler) Plan(c *gin.Context) {
	var req dto.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("请求参数错误: %v", err)))
		return
	}

	def, err := pipeline.Parse([]byte(req.Pipeline))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("流水线定义错误: %v", err)))
		return
	}
	plan, err := service.PlanOf(def, req.Params)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("构建执行计划失败: %v", err)))
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.PlanResponse{
		Order:  plan.Order,
		Levels: plan.Levels,
		Width:  plan.Width,
	}))
}

func toSummary(snap service.RunSnapshot) dto.RunSummary {
	s := dto.RunSummary{
		ID:         snap.ID,
		Pipeline:   snap.Pipeline,
		Engine:     snap.Engine,
		Status:     string(snap.Status),
		StartedAt:  snap.StartedAt,
		FinishedAt: snap.FinishedAt,
		Error:      snap.Error,
	}
	if snap.FinishedAt != nil {
		s.Duration = formatDuration(snap.FinishedAt.Sub(snap.StartedAt))
	}
	return s
}
