package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"chat-insights-go/internal/pipeline"
	"chat-insights-go/pkg/llm"
)

const judgeSystemPrompt = `你是对话意图比对助手。判断两条用户请求是否表达相同的意图（忽略措辞、语气与细节差异）。` +
	`只输出严格的 JSON：{"same": true} 或 {"same": false}，不要输出任何其他内容。`

type llmJudge struct {
	client llm.Client
}

// NewLLMJudge 基于 LLM 创建一个意图比对器。
func NewLLMJudge(client llm.Client) pipeline.Judge {
	return &llmJudge{client: client}
}

// SameIntent 调用 LLM 比较两段文本。调用失败返回 error，返回内容不是
// {"same": bool} 形式时视为不同意图。
func (j *llmJudge) SameIntent(ctx context.Context, a, b string) (bool, error) {
	temperature := 0.0
	maxTokens := 20
	out, err := j.client.Complete(ctx, []llm.Message{
		{Role: "system", Content: judgeSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("A: %s\nB: %s", a, b)},
	}, &llm.GenerationParams{Temperature: &temperature, MaxTokens: &maxTokens, ResponseFormat: "json_object"})
	if err != nil {
		return false, err
	}
	return parseVerdict(out), nil
}

func parseVerdict(s string) bool {
	var verdict struct {
		Same *bool `json:"same"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &verdict); err != nil || verdict.Same == nil {
		return false
	}
	return *verdict.Same
}
