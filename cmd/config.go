// Package cmd 实现 CLI 命令
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"biotutor-cli/internal/chat"
	"biotutor-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "交互式配置后端地址、模型和 API Key",
	Run:   runConfigSetup,
}

var configClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "清除本地保存的全部 API Key",
	Run: func(cmd *cobra.Command, args []string) {
		if err := config.ClearKeys(); err != nil {
			fmt.Fprintf(os.Stderr, "✗ 清除失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✅ 已清除本地保存的 API Key")
	},
}

func init() {
	configCmd.AddCommand(configClearCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigSetup(cmd *cobra.Command, args []string) {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("⚙️  BioTutor 配置")
	fmt.Println("─────────────────────────────────")
	fmt.Println("直接回车保留当前值，API Key 输入时不会回显。")
	fmt.Println()

	cfg := config.Get()

	serverURL := askString(reader, "后端地址", config.GetServerURL())
	if err := config.SaveServerURL(serverURL); err != nil {
		fmt.Fprintf(os.Stderr, "✗ 保存失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("📦 辅导后端各能力的模型配置（留空使用后端默认）")
	models := cfg.Models
	models.VisionModel = askString(reader, "视觉模型", models.VisionModel)
	models.VisionAPIKey = askSecret("视觉模型 API Key", models.VisionAPIKey)
	models.DeepModel = askString(reader, "深度推理模型", models.DeepModel)
	models.DeepAPIKey = askSecret("深度推理模型 API Key", models.DeepAPIKey)
	models.QuickModel = askString(reader, "快速应答模型", models.QuickModel)
	models.QuickAPIKey = askSecret("快速应答模型 API Key", models.QuickAPIKey)
	if err := config.SaveModels(models); err != nil {
		fmt.Fprintf(os.Stderr, "✗ 保存失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("🌐 第三方生成式 API（OpenAI 兼容）")
	openAIKey := askSecret("API Key", config.GetOpenAIKey())
	openAIBase := askString(reader, "API 地址（留空用官方）", config.GetOpenAIBaseURL())
	if err := config.SaveOpenAI(openAIKey, openAIBase); err != nil {
		fmt.Fprintf(os.Stderr, "✗ 保存失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	defaultModel := askString(reader, fmt.Sprintf("默认模型（可选: %s）", modelIDs()), config.GetDefaultModel())
	if chat.FindModel(defaultModel) == nil {
		fmt.Fprintf(os.Stderr, "✗ 未知模型: %s，保留原配置\n", defaultModel)
	} else if err := config.SaveDefaultModel(defaultModel); err != nil {
		fmt.Fprintf(os.Stderr, "✗ 保存失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("✅ 配置已保存")
}

// askString 读取一行输入，空输入返回当前值
func askString(reader *bufio.Reader, prompt, current string) string {
	if current != "" {
		fmt.Printf("%s [%s]: ", prompt, current)
	} else {
		fmt.Printf("%s: ", prompt)
	}
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	return line
}

// askSecret 隐藏输入读取密钥，空输入返回当前值
func askSecret(prompt, current string) string {
	if current != "" {
		fmt.Printf("%s [已设置]: ", prompt)
	} else {
		fmt.Printf("%s: ", prompt)
	}
	data, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return current
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return current
	}
	return value
}

func modelIDs() string {
	ids := make([]string, 0, len(chat.AvailableModels))
	for _, m := range chat.AvailableModels {
		ids = append(ids, m.ID)
	}
	return strings.Join(ids, " / ")
}
