package models

import (
	"encoding/json"
	"time"
)

// PipelineOutcome 单次刷新(删除+插入)的结果
type PipelineOutcome struct {
	Succeeded       bool   `json:"succeeded"`
	RecordsReplaced int64  `json:"deleted_count"`
	RecordsInserted int64  `json:"inserted_count"`
	Message         string `json:"message"`
}

// AttemptReport 单次尝试的记录
type AttemptReport struct {
	Attempt    int             `json:"attempt"`
	StartedAt  time.Time       `json:"started_at"`
	Duration   float64         `json:"duration"` // 秒
	Records    int             `json:"records"`  // 本次提取到的记录数
	SnapshotID string          `json:"snapshot_id,omitempty"`
	Outcome    PipelineOutcome `json:"outcome"`
	Error      string          `json:"error,omitempty"`
}

// RunStatus 编排运行的最终状态
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunReport 一次编排运行(最多N次尝试)的报告
type RunReport struct {
	RunID       string          `json:"run_id"`
	SourceURL   string          `json:"source_url"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Status      RunStatus       `json:"status"`
	Attempts    []AttemptReport `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
}

// Final 返回最后一次尝试的结果
func (r *RunReport) Final() (AttemptReport, bool) {
	if r == nil || len(r.Attempts) == 0 {
		return AttemptReport{}, false
	}
	return r.Attempts[len(r.Attempts)-1], true
}

// ToJSON 序列化为JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *RunReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
