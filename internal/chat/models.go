package chat

// Provider 模型提供方
type Provider string

const (
	ProviderBiologyTutor Provider = "biology_tutor"
	ProviderOpenAI       Provider = "openai"
	ProviderDeepSeek     Provider = "deepseek"
)

// ModelInfo 可选模型的展示信息
type ModelInfo struct {
	ID          string
	Name        string
	Provider    Provider
	Description string
}

// AvailableModels 可用模型列表
var AvailableModels = []ModelInfo{
	{
		ID:          "biology-tutor",
		Name:        "生物辅导姐姐",
		Provider:    ProviderBiologyTutor,
		Description: "温柔大姐姐风格，专业错题辅导",
	},
	{
		ID:          "gpt-4o",
		Name:        "GPT-4o",
		Provider:    ProviderOpenAI,
		Description: "深度逻辑推理，适合遗传题/实验题",
	},
	{
		ID:          "gpt-4o-mini",
		Name:        "GPT-4o mini",
		Provider:    ProviderOpenAI,
		Description: "快速概念查询与基础题讲解",
	},
	{
		ID:          "deepseek-chat",
		Name:        "DeepSeek V3",
		Provider:    ProviderDeepSeek,
		Description: "擅长中文理科语境与复杂计算",
	},
}

// DefaultModelID 默认模型
const DefaultModelID = "biology-tutor"

// FindModel 按 ID 查找模型，找不到返回 nil
func FindModel(id string) *ModelInfo {
	for i := range AvailableModels {
		if AvailableModels[i].ID == id {
			return &AvailableModels[i]
		}
	}
	return nil
}
