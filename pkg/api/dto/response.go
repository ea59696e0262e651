package dto

import (
	"encoding/json"
	"time"
)

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// SubmitResponse 提交运行响应
type SubmitResponse struct {
	RunID   string `json:"run_id"`
	Message string `json:"message"`
}

// RunSummary 运行摘要信息
type RunSummary struct {
	ID         string     `json:"id"`
	Pipeline   string     `json:"pipeline"`
	Engine     string     `json:"engine"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Duration   string     `json:"duration,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// RunDetail 运行详细信息
type RunDetail struct {
	RunSummary
	FailedNode string       `json:"failed_node,omitempty"`
	Progress   ProgressInfo `json:"progress"`
}

// ProgressInfo 进度信息
type ProgressInfo struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Running   int `json:"running"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// NodeDetail 节点详细信息
type NodeDetail struct {
	Label      string     `json:"label"`
	State      string     `json:"state"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Duration   string     `json:"duration,omitempty"`
}

// NodeResult 节点结果（原始序列化内容）
type NodeResult struct {
	RunID  string          `json:"run_id"`
	Label  string          `json:"label"`
	Result json.RawMessage `json:"result"`
}

// PlanResponse 执行计划响应
type PlanResponse struct {
	Order  []string   `json:"order"`
	Levels [][]string `json:"levels"`
	Width  int        `json:"width"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// ListResponse 列表响应
type ListResponse[T any] struct {
	Total   int  `json:"total"`
	Items   []T  `json:"items"`
	HasMore bool `json:"has_more"`
}
