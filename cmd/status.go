// Package cmd 实现 CLI 命令
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"biotutor-cli/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "查看当前配置",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Get()

		fmt.Println("BioTutor 配置状态")
		fmt.Println("─────────────────────────────────")
		fmt.Printf("  📡 后端地址: %s\n", config.GetServerURL())
		fmt.Printf("  🤖 默认模型: %s\n", config.GetDefaultModel())
		fmt.Println()
		fmt.Println("  辅导后端模型：")
		fmt.Printf("    视觉: %s (Key: %s)\n", orEmpty(cfg.Models.VisionModel), maskKey(cfg.Models.VisionAPIKey))
		fmt.Printf("    深度: %s (Key: %s)\n", orEmpty(cfg.Models.DeepModel), maskKey(cfg.Models.DeepAPIKey))
		fmt.Printf("    快速: %s (Key: %s)\n", orEmpty(cfg.Models.QuickModel), maskKey(cfg.Models.QuickAPIKey))
		fmt.Println()
		fmt.Printf("  第三方 API Key: %s\n", maskKey(cfg.OpenAI.APIKey))
		if cfg.OpenAI.BaseURL != "" {
			fmt.Printf("  第三方 API 地址: %s\n", cfg.OpenAI.BaseURL)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// maskKey 只展示 Key 的前几位
func maskKey(key string) string {
	if key == "" {
		return "未设置"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

func orEmpty(s string) string {
	if s == "" {
		return "(后端默认)"
	}
	return s
}
