// Package cmd 实现 CLI 命令
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"biotutor-cli/internal/api"
	"biotutor-cli/internal/chat"
	"biotutor-cli/internal/config"
	"biotutor-cli/internal/provider"
	"biotutor-cli/internal/router"
	"biotutor-cli/internal/terminal"
	"biotutor-cli/internal/tutor"
)

var rootCmd = &cobra.Command{
	Use:   "biotutor",
	Short: "BioTutor - 高中生物辅导助手终端客户端",
	Long: `BioTutor CLI 客户端

终端里的生物辅导聊天界面：支持错题图片分析、概念讲解和普通聊天，
消息会路由到生物辅导后端、第三方生成式 API 或模拟回复。

直接运行即可进入聊天，输入 /help 查看可用命令。`,
	Run: runChat,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// 全局参数
	rootCmd.PersistentFlags().StringP("server", "s", "", "后端地址 (默认: http://localhost:8000)")
	rootCmd.Flags().StringP("model", "m", "", "启动时选中的模型 ID")
}

func initConfig() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "初始化配置失败: %v\n", err)
		os.Exit(1)
	}

	// 如果指定了后端地址，更新配置
	if server, _ := rootCmd.PersistentFlags().GetString("server"); server != "" {
		config.SetServerURL(server)
	}
}

func printBanner() {
	fmt.Println()
	fmt.Println("╔════════════════════════════════════════════════╗")
	fmt.Println("║         🧬 BioTutor 生物辅导助手                ║")
	fmt.Println("║                                                ║")
	fmt.Println("║   错题辅导 · 概念讲解 · 考点分析                  ║")
	fmt.Println("╚════════════════════════════════════════════════╝")
	fmt.Println()
}

// runChat 交互式聊天主流程
func runChat(cmd *cobra.Command, args []string) {
	printBanner()

	modelID := config.GetDefaultModel()
	if flagModel, _ := cmd.Flags().GetString("model"); flagModel != "" {
		if chat.FindModel(flagModel) == nil {
			fmt.Fprintf(os.Stderr, "✗ 未知模型: %s\n", flagModel)
			os.Exit(1)
		}
		modelID = flagModel
	}

	client := api.NewClient(config.GetServerURL())
	orchestrator := tutor.New(client)
	openAI := provider.NewOpenAI(config.GetOpenAIKey(), config.GetOpenAIBaseURL())
	rt := router.New(orchestrator, config.ModelSettings(), openAI)
	render := terminal.NewRenderer()

	fmt.Printf("  📡 后端: %s\n", config.GetServerURL())
	fmt.Printf("  🤖 模型: %s\n", modelDisplayName(modelID))
	fmt.Println()
	fmt.Println("输入消息开始聊天，/help 查看命令，/exit 退出")
	render.Divider()

	// Ctrl+C 取消当前回合并退出
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var history []*chat.Message
	var pending *chat.Attachment

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "/") {
			if quit := handleCommand(line, orchestrator, render, &history, &pending, &modelID); quit {
				break
			}
			continue
		}

		if line == "" && pending == nil {
			continue
		}

		msg := chat.NewMessage(chat.RoleUser, line)
		if pending != nil {
			msg.Attachments = []chat.Attachment{*pending}
			render.UserTurn("", []string{pending.Name})
			pending = nil
		}
		history = append(history, msg)

		render.AssistantStart(modelDisplayName(modelID))
		reply := chat.NewMessage(chat.RoleAssistant, "")
		err = rt.Route(ctx, history, modelID, func(chunk string) {
			reply.Content += chunk
			render.Chunk(chunk)
		})
		render.AssistantEnd()

		if err != nil {
			// 只有取消/中断会走到这里
			fmt.Println("已中断，再见！")
			return
		}
		history = append(history, reply)
	}

	fmt.Println()
	fmt.Println("再见！👋")
}

// handleCommand 处理斜杠命令，返回 true 表示退出
func handleCommand(line string, orchestrator *tutor.Orchestrator, render *terminal.Renderer, history *[]*chat.Message, pending **chat.Attachment, modelID *string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/exit", "/quit":
		return true

	case "/help":
		printHelp()

	case "/reset":
		orchestrator.Reset()
		*history = nil
		*pending = nil
		render.Notice("🔄 会话已重置，下一条消息将开始新会话")

	case "/model":
		if len(fields) < 2 {
			printModels(*modelID)
			break
		}
		if chat.FindModel(fields[1]) == nil {
			render.Notice("✗ 未知模型: %s（/model 查看可选项）", fields[1])
			break
		}
		*modelID = fields[1]
		render.Notice("✅ 已切换到 %s", modelDisplayName(*modelID))

	case "/image":
		if len(fields) < 2 {
			render.Notice("用法: /image <图片路径>")
			break
		}
		att, err := chat.LoadAttachment(strings.TrimSpace(strings.TrimPrefix(line, "/image")))
		if err != nil {
			render.Notice("✗ %v", err)
			break
		}
		*pending = att
		render.Notice("🖼  已附加 %s，输入文字后发送（直接回车只发图片）", att.Name)

	default:
		render.Notice("未知命令: %s（/help 查看可用命令）", fields[0])
	}
	return false
}

func printHelp() {
	fmt.Println("可用命令：")
	fmt.Println("  /image <路径>   附加一张题目图片")
	fmt.Println("  /model [id]    查看或切换模型")
	fmt.Println("  /reset         重置会话和历史")
	fmt.Println("  /help          显示本帮助")
	fmt.Println("  /exit          退出")
}

func printModels(current string) {
	fmt.Println("可用模型：")
	for _, m := range chat.AvailableModels {
		marker := "  "
		if m.ID == current {
			marker = "▸ "
		}
		fmt.Printf("%s%s - %s（%s）\n", marker, m.ID, m.Name, m.Description)
	}
}

func modelDisplayName(modelID string) string {
	if m := chat.FindModel(modelID); m != nil {
		return m.Name
	}
	return modelID
}
