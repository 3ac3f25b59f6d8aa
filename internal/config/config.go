// Package config 管理 CLI 客户端配置
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"biotutor-cli/internal/api"
	"biotutor-cli/internal/chat"
)

// Config CLI 配置结构
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Models ModelsConfig `mapstructure:"models"`
	Chat   ChatConfig   `mapstructure:"chat"`
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// ServerConfig 辅导后端配置
type ServerConfig struct {
	URL string `mapstructure:"url"` // 后端基础地址
}

// ModelsConfig 各能力的模型与 API Key 配置（随建会话下发）
type ModelsConfig struct {
	VisionModel  string `mapstructure:"vision_model"`
	VisionAPIKey string `mapstructure:"vision_api_key"`
	DeepModel    string `mapstructure:"deep_model"`
	DeepAPIKey   string `mapstructure:"deep_api_key"`
	QuickModel   string `mapstructure:"quick_model"`
	QuickAPIKey  string `mapstructure:"quick_api_key"`
}

// ChatConfig 聊天界面配置
type ChatConfig struct {
	DefaultModel string `mapstructure:"default_model"` // 启动时选中的模型
}

// OpenAIConfig 第三方生成式 API 配置
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"` // 为空时使用官方地址
}

var (
	cfg        *Config
	configPath string
	configDir  string
)

// Init 初始化配置
func Init() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("获取用户目录失败: %w", err)
	}

	configDir = filepath.Join(home, ".biotutor")
	configPath = filepath.Join(configDir, "config.yaml")

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 默认值
	viper.SetDefault("server.url", "http://localhost:8000")
	viper.SetDefault("models.vision_model", "")
	viper.SetDefault("models.vision_api_key", "")
	viper.SetDefault("models.deep_model", "")
	viper.SetDefault("models.deep_api_key", "")
	viper.SetDefault("models.quick_model", "")
	viper.SetDefault("models.quick_api_key", "")
	viper.SetDefault("chat.default_model", chat.DefaultModelID)
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("openai.base_url", "")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := viper.SafeWriteConfig(); err != nil {
				// 忽略文件已存在的错误
			}
		}
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("解析配置失败: %w", err)
	}

	return nil
}

// Get 获取配置
func Get() *Config {
	return cfg
}

// GetServerURL 获取后端地址
func GetServerURL() string {
	if cfg == nil {
		return "http://localhost:8000"
	}
	return cfg.Server.URL
}

// SetServerURL 设置后端地址
func SetServerURL(url string) {
	viper.Set("server.url", url)
	if cfg != nil {
		cfg.Server.URL = url
	}
}

// GetDefaultModel 获取默认模型 ID
func GetDefaultModel() string {
	if cfg == nil || cfg.Chat.DefaultModel == "" {
		return chat.DefaultModelID
	}
	return cfg.Chat.DefaultModel
}

// GetOpenAIKey 获取第三方 API Key
func GetOpenAIKey() string {
	if cfg == nil {
		return ""
	}
	return cfg.OpenAI.APIKey
}

// GetOpenAIBaseURL 获取第三方 API 地址
func GetOpenAIBaseURL() string {
	if cfg == nil {
		return ""
	}
	return cfg.OpenAI.BaseURL
}

// ModelSettings 返回建会话时下发的模型配置快照，全部为空时返回 nil
func ModelSettings() *api.ModelSettings {
	if cfg == nil {
		return nil
	}
	m := cfg.Models
	if m.VisionModel == "" && m.VisionAPIKey == "" &&
		m.DeepModel == "" && m.DeepAPIKey == "" &&
		m.QuickModel == "" && m.QuickAPIKey == "" {
		return nil
	}
	return &api.ModelSettings{
		VisionModel:  m.VisionModel,
		VisionAPIKey: m.VisionAPIKey,
		DeepModel:    m.DeepModel,
		DeepAPIKey:   m.DeepAPIKey,
		QuickModel:   m.QuickModel,
		QuickAPIKey:  m.QuickAPIKey,
	}
}

// SaveModels 保存各能力的模型配置
func SaveModels(m ModelsConfig) error {
	viper.Set("models.vision_model", m.VisionModel)
	viper.Set("models.vision_api_key", m.VisionAPIKey)
	viper.Set("models.deep_model", m.DeepModel)
	viper.Set("models.deep_api_key", m.DeepAPIKey)
	viper.Set("models.quick_model", m.QuickModel)
	viper.Set("models.quick_api_key", m.QuickAPIKey)
	if cfg != nil {
		cfg.Models = m
	}
	return viper.WriteConfig()
}

// SaveOpenAI 保存第三方 API 配置
func SaveOpenAI(apiKey, baseURL string) error {
	viper.Set("openai.api_key", apiKey)
	viper.Set("openai.base_url", baseURL)
	if cfg != nil {
		cfg.OpenAI.APIKey = apiKey
		cfg.OpenAI.BaseURL = baseURL
	}
	return viper.WriteConfig()
}

// SaveDefaultModel 保存默认模型
func SaveDefaultModel(modelID string) error {
	viper.Set("chat.default_model", modelID)
	if cfg != nil {
		cfg.Chat.DefaultModel = modelID
	}
	return viper.WriteConfig()
}

// SaveServerURL 保存后端地址
func SaveServerURL(url string) error {
	viper.Set("server.url", url)
	if cfg != nil {
		cfg.Server.URL = url
	}
	return viper.WriteConfig()
}

// ClearKeys 清除本地保存的全部 API Key
func ClearKeys() error {
	viper.Set("models.vision_api_key", "")
	viper.Set("models.deep_api_key", "")
	viper.Set("models.quick_api_key", "")
	viper.Set("openai.api_key", "")
	if cfg != nil {
		cfg.Models.VisionAPIKey = ""
		cfg.Models.DeepAPIKey = ""
		cfg.Models.QuickAPIKey = ""
		cfg.OpenAI.APIKey = ""
	}
	return viper.WriteConfig()
}
