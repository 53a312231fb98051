package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// JobState 证明任务状态
type JobState string

const (
	JobPending         JobState = "pending"
	JobWitnessBuilding JobState = "witness_building"
	JobQueued          JobState = "queued"
	JobProving         JobState = "proving"
	JobSelfVerifying   JobState = "self_verifying"
	JobCompleted       JobState = "completed"
	JobFailed          JobState = "failed"
	JobCancelled       JobState = "cancelled"
)

// IsTerminal 是否为终态
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// JobSnapshot 请求或任务在某一时刻的只读视图
type JobSnapshot struct {
	RequestID     string      `json:"request_id"`
	JobID         string      `json:"job_id,omitempty"`
	BackendID     string      `json:"backend_id"`
	WitnessDigest common.Hash `json:"witness_digest"`
	State         JobState    `json:"state"`
	ErrorKind     ErrorKind   `json:"error_kind,omitempty"`
	Error         string      `json:"error,omitempty"`
	Priority      int         `json:"priority"`
	Waiters       int         `json:"waiters"`
	Attempts      int         `json:"attempts"`
	CacheHit      bool        `json:"cache_hit"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// JobEvent 状态迁移事件，经事件总线广播
type JobEvent struct {
	RequestID string    `json:"request_id"`
	JobID     string    `json:"job_id,omitempty"`
	BackendID string    `json:"backend_id"`
	From      JobState  `json:"from"`
	To        JobState  `json:"to"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	At        time.Time `json:"at"`
}

// BackendHealth 后端健康状态
type BackendHealth string

const (
	BackendHealthy   BackendHealth = "healthy"
	BackendDegraded  BackendHealth = "degraded"
	BackendUnhealthy BackendHealth = "unhealthy"
)

// BackendInfo 后端运行信息
type BackendInfo struct {
	Descriptor  BackendDescriptor `json:"descriptor"`
	Health      BackendHealth     `json:"health"`
	KeysLoaded  bool              `json:"keys_loaded"`
	ActiveTasks int64             `json:"active_tasks"`
	ProofsTotal uint64            `json:"proofs_total"`
}
