package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/weisyn/zkattest/configs"
	"github.com/weisyn/zkattest/internal/app"
)

// GlobalFlags 全局标志
type GlobalFlags struct {
	ConfigFile   string // 配置文件路径
	Env          string // 未指定配置文件时使用的内置环境配置
	Server       string // 远程命令的服务地址
	OutputFormat string // 输出格式
	Verbose      bool   // 显示启动过程输出
}

var globalFlags GlobalFlags

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "zkattest",
	Short: "链上事件零知识证明服务",
	Long: `zkattest 为已最终确认的链上事件生成可独立验证的零知识证明。

本地命令（serve / prove / backends）在当前进程内装配证明流水线；
远程命令（submit / status / result / cancel / cache）通过 HTTP API 操作运行中的服务。`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch globalFlags.OutputFormat {
		case "table", "json":
		default:
			return fmt.Errorf("unsupported output format %q", globalFlags.OutputFormat)
		}
		if globalFlags.OutputFormat == "json" {
			pterm.DisableStyling()
		}
		return nil
	},
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&globalFlags.ConfigFile, "config", "c", "", "配置文件路径 (也可通过 "+app.ConfigPathEnv+" 指定)")
	flags.StringVar(&globalFlags.Env, "env", "", "使用内置环境配置: dev|test|prod")
	flags.StringVar(&globalFlags.Server, "server", "http://127.0.0.1:8080", "远程命令使用的服务地址")
	flags.StringVarP(&globalFlags.OutputFormat, "output", "o", "table", "输出格式: table|json")
	flags.BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "显示启动过程输出")

	rootCmd.AddCommand(serveCmd, proveCmd, backendsCmd, versionCmd)
	rootCmd.AddCommand(submitCmd, statusCmd, resultCmd, cancelCmd, cacheCmd)
}

// configOptions 根据全局标志生成配置来源选项
func configOptions() ([]app.Option, error) {
	var opts []app.Option
	switch {
	case globalFlags.ConfigFile != "":
		opts = append(opts, app.WithConfigFile(globalFlags.ConfigFile))
	case globalFlags.Env != "":
		data := configs.ForEnvironment(globalFlags.Env)
		if data == nil {
			return nil, fmt.Errorf("unknown environment %q", globalFlags.Env)
		}
		opts = append(opts, app.WithEmbeddedConfig(data))
	}
	if !globalFlags.Verbose {
		opts = append(opts, app.WithOutput(nil))
	}
	return opts, nil
}
