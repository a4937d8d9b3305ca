// Package cmd 命令行入口：serve 启动 HTTP 服务，worker 消费队列，render / parse 处理单个剧本文件。
package cmd

import (
	"fmt"
	"io"
	"os"

	"ScriptToVideo-server/config"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "script2video",
	Short:         "把结构化剧本渲染成视频",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(configPath); err != nil {
			return err
		}
		config.InitLogger(config.AppConfig.Log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "配置文件路径")
	rootCmd.AddCommand(serveCmd, workerCmd, renderCmd, parseCmd)
}

// Execute main 的唯一入口
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// readScript 读取剧本文件，"-" 表示标准输入
func readScript(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("读取剧本失败: %w", err)
	}
	return string(data), nil
}
