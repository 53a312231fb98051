package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/weisyn/zkattest/internal/app"
	"github.com/weisyn/zkattest/internal/app/version"
	"github.com/weisyn/zkattest/internal/core/proofgen/collector"
	"github.com/weisyn/zkattest/pkg/types"
)

// serveCmd 启动证明服务
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动证明服务（HTTP API + WebSocket 事件）",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := configOptions()
		if err != nil {
			return err
		}
		opts = append(opts, app.WithAPI(), app.WithOutput(os.Stdout))

		a, err := app.Start(opts...)
		if err != nil {
			return err
		}
		a.Wait()
		return nil
	},
}

var proveFlags struct {
	bundle   string
	backend  string
	chainID  uint64
	priority int
	timeout  time.Duration
	deadline time.Duration
	outFile  string
}

// proveCmd 在本进程内对证据文件生成证明
var proveCmd = &cobra.Command{
	Use:   "prove",
	Short: "对证据文件生成一次证明（不启动 HTTP 服务）",
	Example: `  zkattest prove --bundle event.json --backend groth16-v1 --chain-id 1
  zkattest prove --bundle event.json --backend plonk-v1 --out artifact.json -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := collector.LoadBundle(proveFlags.bundle)
		if err != nil {
			return err
		}

		opts, err := configOptions()
		if err != nil {
			return err
		}
		a, err := app.Start(append(opts, app.WithoutAPI())...)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Stop(); err != nil {
				pterm.Warning.Printf("停止证明流水线失败: %v\n", err)
			}
		}()

		req := &types.ProofRequest{
			ChainID:   proveFlags.chainID,
			Anchor:    bundle.Anchor,
			Event:     bundle.Event,
			BackendID: proveFlags.backend,
			Priority:  proveFlags.priority,
			Evidence:  bundle.Evidence,
		}
		if proveFlags.deadline > 0 {
			req.Deadline = time.Now().Add(proveFlags.deadline)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), proveFlags.timeout)
		defer cancel()

		var spinner *pterm.SpinnerPrinter
		if !jsonOutput() {
			spinner, _ = pterm.DefaultSpinner.WithText(fmt.Sprintf("正在使用 %s 生成证明...", req.BackendID)).Start()
		}
		start := time.Now()
		id, err := a.Service().Submit(ctx, req)
		var artifact *types.ProofArtifact
		if err == nil {
			artifact, err = a.Service().Wait(ctx, id)
		}
		if spinner != nil {
			if err != nil {
				spinner.Fail(fmt.Sprintf("证明失败 (%s): %v", types.KindOf(err), err))
			} else {
				spinner.Success(fmt.Sprintf("证明完成，用时 %s", time.Since(start).Round(time.Millisecond)))
			}
		}
		if err != nil {
			return err
		}

		if proveFlags.outFile != "" {
			data, err := json.MarshalIndent(artifact, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(proveFlags.outFile, data, 0o644); err != nil {
				return fmt.Errorf("write artifact: %w", err)
			}
		}
		return printArtifact(id, artifact)
	},
}

// backendsCmd 列出配置中的后端
var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "列出配置注册的证明后端及其健康状态",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := configOptions()
		if err != nil {
			return err
		}
		a, err := app.Start(append(opts, app.WithoutAPI())...)
		if err != nil {
			return err
		}
		defer func() { _ = a.Stop() }()

		registry := a.Backends()
		var infos []*types.BackendInfo
		for _, desc := range registry.List() {
			info, err := registry.Info(cmd.Context(), desc.ID)
			if err != nil {
				return err
			}
			infos = append(infos, info)
		}
		return printBackends(infos)
	},
}

// versionCmd 版本信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput() {
			return printJSON(version.GetBuildInfo())
		}
		pterm.Println(version.GetFullVersion())
		return nil
	},
}

func init() {
	f := proveCmd.Flags()
	f.StringVarP(&proveFlags.bundle, "bundle", "b", "", "证据文件 (anchor + event + evidence)")
	f.StringVar(&proveFlags.backend, "backend", "groth16-v1", "证明后端 ID")
	f.Uint64Var(&proveFlags.chainID, "chain-id", 1, "源链 ID")
	f.IntVar(&proveFlags.priority, "priority", 0, "优先级，越大越先调度")
	f.DurationVar(&proveFlags.timeout, "timeout", 10*time.Minute, "本地等待上限")
	f.DurationVar(&proveFlags.deadline, "deadline", 0, "请求截止时间（相对当前），0 表示不设置")
	f.StringVar(&proveFlags.outFile, "out", "", "将证明结果写入文件")
	_ = proveCmd.MarkFlagRequired("bundle")
}
