package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	httptypes "github.com/weisyn/zkattest/internal/api/http/types"
	"github.com/weisyn/zkattest/internal/core/proofgen/collector"
	"github.com/weisyn/zkattest/pkg/interfaces/proofgen"
	"github.com/weisyn/zkattest/pkg/types"
)

var remoteTimeout time.Duration

func client() *restClient {
	return newRESTClient(globalFlags.Server, remoteTimeout)
}

var submitFlags struct {
	bundle   string
	backend  string
	chainID  uint64
	priority int
	deadline time.Duration
	wait     bool
}

// submitCmd 向运行中的服务提交证明请求
var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "向服务提交证明请求，证据随请求内嵌提交",
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := collector.LoadBundle(submitFlags.bundle)
		if err != nil {
			return err
		}
		body := types.ProofRequest{
			ChainID:   submitFlags.chainID,
			Anchor:    bundle.Anchor,
			Event:     bundle.Event,
			BackendID: submitFlags.backend,
			Priority:  submitFlags.priority,
			Evidence:  bundle.Evidence,
		}
		if submitFlags.deadline > 0 {
			body.Deadline = time.Now().Add(submitFlags.deadline)
		}

		if submitFlags.wait {
			var res httptypes.ProofResult
			params := url.Values{"wait": {"true"}}
			if err := client().do(cmd.Context(), http.MethodPost, "/proofs", params, body, &res); err != nil {
				return err
			}
			return printArtifact(res.RequestID, res.Artifact)
		}

		var accepted httptypes.ProofAccepted
		if err := client().do(cmd.Context(), http.MethodPost, "/proofs", nil, body, &accepted); err != nil {
			return err
		}
		if jsonOutput() {
			return printJSON(accepted)
		}
		pterm.Success.Printf("已提交: %s\n", accepted.RequestID)
		return nil
	},
}

// statusCmd 查询请求状态
var statusCmd = &cobra.Command{
	Use:   "status <request-id>",
	Short: "查询证明请求状态",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var snap types.JobSnapshot
		if err := client().do(cmd.Context(), http.MethodGet, "/proofs/"+url.PathEscape(args[0]), nil, nil, &snap); err != nil {
			return err
		}
		return printSnapshot(&snap)
	},
}

var resultWait time.Duration

// resultCmd 等待并获取结果
var resultCmd = &cobra.Command{
	Use:   "result <request-id>",
	Short: "等待证明请求结束并输出结果",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var params url.Values
		if resultWait > 0 {
			params = url.Values{"timeout": {resultWait.String()}}
		}
		var res httptypes.ProofResult
		if err := client().do(cmd.Context(), http.MethodGet, "/proofs/"+url.PathEscape(args[0])+"/result", params, nil, &res); err != nil {
			return err
		}
		return printArtifact(res.RequestID, res.Artifact)
	},
}

// cancelCmd 取消请求
var cancelCmd = &cobra.Command{
	Use:   "cancel <request-id>",
	Short: "取消尚未开始证明的请求",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var res httptypes.CancelResult
		if err := client().do(cmd.Context(), http.MethodDelete, "/proofs/"+url.PathEscape(args[0]), nil, nil, &res); err != nil {
			return err
		}
		if jsonOutput() {
			return printJSON(res)
		}
		pterm.Success.Printf("已取消: %s\n", res.RequestID)
		return nil
	},
}

// cacheCmd 缓存管理
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "查看或清理服务端证明缓存",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "缓存统计",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st proofgen.CacheStats
		if err := client().do(cmd.Context(), http.MethodGet, "/cache/stats", nil, nil, &st); err != nil {
			return err
		}
		if jsonOutput() {
			return printJSON(st)
		}
		return renderKV([][]string{
			{"条目", fmt.Sprintf("%d / %d", st.Entries, st.Capacity)},
			{"内存命中", strconv.FormatUint(st.Hits, 10)},
			{"持久层命中", strconv.FormatUint(st.PersistedHits, 10)},
			{"未命中", strconv.FormatUint(st.Misses, 10)},
			{"淘汰", strconv.FormatUint(st.Evictions, 10)},
			{"失效", strconv.FormatUint(st.Invalidations, 10)},
			{"损坏", strconv.FormatUint(st.Corruptions, 10)},
		})
	},
}

var invalidateBackend string

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "清空缓存；指定 --backend 时只丢弃该后端过期版本的条目",
	RunE: func(cmd *cobra.Command, args []string) error {
		var params url.Values
		if invalidateBackend != "" {
			params = url.Values{"backend": {invalidateBackend}}
		}
		var res map[string]interface{}
		if err := client().do(cmd.Context(), http.MethodDelete, "/cache", params, nil, &res); err != nil {
			return err
		}
		if jsonOutput() {
			return printJSON(res)
		}
		if invalidateBackend != "" {
			pterm.Success.Printf("已失效 %v 条 %s 的过期条目\n", res["invalidated"], invalidateBackend)
			return nil
		}
		pterm.Success.Println("缓存已清空")
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{submitCmd, statusCmd, resultCmd, cancelCmd, cacheCmd} {
		c.PersistentFlags().DurationVar(&remoteTimeout, "http-timeout", 10*time.Minute, "HTTP 请求超时")
	}

	f := submitCmd.Flags()
	f.StringVarP(&submitFlags.bundle, "bundle", "b", "", "证据文件 (anchor + event + evidence)")
	f.StringVar(&submitFlags.backend, "backend", "groth16-v1", "证明后端 ID")
	f.Uint64Var(&submitFlags.chainID, "chain-id", 1, "源链 ID")
	f.IntVar(&submitFlags.priority, "priority", 0, "优先级，越大越先调度")
	f.DurationVar(&submitFlags.deadline, "deadline", 0, "请求截止时间（相对当前），0 表示不设置")
	f.BoolVar(&submitFlags.wait, "wait", false, "同步等待结果")
	_ = submitCmd.MarkFlagRequired("bundle")

	resultCmd.Flags().DurationVar(&resultWait, "wait", 0, "最长等待时间，0 表示使用服务端上限")

	cachePurgeCmd.Flags().StringVar(&invalidateBackend, "backend", "", "只失效该后端的过期版本条目")
	cacheCmd.AddCommand(cacheStatsCmd, cachePurgeCmd)
}
