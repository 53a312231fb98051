// Package version 构建版本信息，通过 ldflags 注入
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// 构建时注入的变量
//
//	go build -ldflags "-X github.com/weisyn/zkattest/internal/app/version.Version=v0.2.0"
var (
	Version   = "v0.1.0-dev"
	BuildTime = "unknown" // RFC3339
	GitCommit = "unknown"
)

// BuildInfo 构建信息
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	// Deps 证明相关依赖的版本
	Deps map[string]string `json:"deps,omitempty"`
}

// trackedDeps 版本信息中展示的依赖
var trackedDeps = []string{
	"github.com/consensys/gnark",
	"github.com/consensys/gnark-crypto",
	"github.com/ethereum/go-ethereum",
}

// GetBuildInfo 获取构建信息
func GetBuildInfo() *BuildInfo {
	info := &BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.Deps = make(map[string]string)
		for _, dep := range bi.Deps {
			for _, want := range trackedDeps {
				if dep.Path == want {
					info.Deps[dep.Path] = dep.Version
				}
			}
		}
	}
	return info
}

// GetFullVersion 多行版本描述
func GetFullVersion() string {
	bi := GetBuildInfo()
	s := fmt.Sprintf("zkattest %s", bi.Version)
	if t, err := time.Parse(time.RFC3339, bi.BuildTime); err == nil {
		s += fmt.Sprintf("\n构建时间: %s", t.Format("2006-01-02 15:04:05 MST"))
	}
	if bi.GitCommit != "unknown" {
		s += fmt.Sprintf("\n提交: %s", bi.GitCommit)
	}
	s += fmt.Sprintf("\nGo版本: %s\n平台: %s", bi.GoVersion, bi.Platform)
	for _, dep := range trackedDeps {
		if v, ok := bi.Deps[dep]; ok {
			s += fmt.Sprintf("\n%s %s", dep, v)
		}
	}
	return s
}
