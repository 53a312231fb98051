package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/weisyn/zkattest/pkg/types"
)

func jsonOutput() bool { return globalFlags.OutputFormat == "json" }

// printJSON 以缩进 JSON 输出到标准输出
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderTable 输出带表头的表格
func renderTable(header []string, rows [][]string) error {
	data := pterm.TableData{header}
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader(true).WithBoxed(true).WithData(data).Render()
}

// renderKV 输出两列键值表
func renderKV(rows [][]string) error {
	return pterm.DefaultTable.WithHasHeader(false).WithData(rows).Render()
}

// printArtifact 输出证明结果
func printArtifact(requestID string, a *types.ProofArtifact) error {
	if jsonOutput() {
		return printJSON(struct {
			RequestID string               `json:"request_id"`
			Artifact  *types.ProofArtifact `json:"artifact"`
		}{requestID, a})
	}
	pterm.DefaultSection.Println("证明结果")
	return renderKV([][]string{
		{"请求", requestID},
		{"后端", a.Backend.String()},
		{"见证摘要", a.WitnessDigest.Hex()},
		{"证明大小", fmt.Sprintf("%d bytes", a.Metadata.ProofSize)},
		{"公开输入", fmt.Sprintf("%d bytes", len(a.PublicInputs))},
		{"电路哈希", a.Metadata.CircuitHash.Hex()},
		{"尝试次数", strconv.Itoa(a.Metadata.Attempts)},
		{"生成耗时", a.Metadata.GenerationTime.Round(time.Millisecond).String()},
		{"生成时间", a.Metadata.GeneratedAt.Format(time.RFC3339)},
	})
}

// printSnapshot 输出请求状态
func printSnapshot(s *types.JobSnapshot) error {
	if jsonOutput() {
		return printJSON(s)
	}
	rows := [][]string{
		{"请求", s.RequestID},
		{"状态", string(s.State)},
		{"后端", s.BackendID},
		{"见证摘要", s.WitnessDigest.Hex()},
		{"尝试次数", strconv.Itoa(s.Attempts)},
		{"等待方", strconv.Itoa(s.Waiters)},
		{"缓存命中", strconv.FormatBool(s.CacheHit)},
		{"更新时间", s.UpdatedAt.Format(time.RFC3339)},
	}
	if s.ErrorKind != "" {
		rows = append(rows, []string{"错误", fmt.Sprintf("%s: %s", s.ErrorKind, s.Error)})
	}
	return renderKV(rows)
}

// printBackends 输出后端信息
func printBackends(infos []*types.BackendInfo) error {
	if jsonOutput() {
		return printJSON(infos)
	}
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{
			info.Descriptor.ID,
			strconv.FormatUint(uint64(info.Descriptor.Version), 10),
			strconv.FormatUint(uint64(info.Descriptor.WitnessSchemaVersion), 10),
			string(info.Health),
			strconv.FormatBool(info.KeysLoaded),
			strconv.FormatInt(info.ActiveTasks, 10),
			strconv.FormatUint(info.ProofsTotal, 10),
		})
	}
	return renderTable([]string{"ID", "版本", "见证结构", "健康", "密钥", "活跃", "累计"}, rows)
}
