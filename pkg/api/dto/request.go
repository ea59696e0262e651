package dto

// SubmitRunRequest 提交运行请求（YAML 流水线内容）
type SubmitRunRequest struct {
	Pipeline         string            `json:"pipeline" binding:"required"`
	Params           map[string]string `json:"params" binding:"omitempty"`
	Engine           string            `json:"engine" binding:"omitempty,oneof=async pool"`
	ConcurrencyLimit int               `json:"concurrency_limit" binding:"omitempty,min=1"`
	WorkerPoolSize   int               `json:"worker_pool_size" binding:"omitempty,min=1"`
}

// PlanRequest 执行计划请求
type PlanRequest struct {
	Pipeline string            `json:"pipeline" binding:"required"`
	Params   map[string]string `json:"params" binding:"omitempty"`
}

// ListQueryRequest 运行列表查询请求
type ListQueryRequest struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
	Status string `form:"status" binding:"omitempty,oneof=running succeeded failed"`
}

// GetDefaultLimit 获取默认limit
func (r *ListQueryRequest) GetDefaultLimit() int {
	if r.Limit <= 0 {
		return 20
	}
	return r.Limit
}
