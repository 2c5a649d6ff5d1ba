package ai

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Generator 生成式内容服务契约: 一段指令 + PDF 原始字节 -> 纯文本。
// 核心只依赖这个能力，不依赖具体客户端。实现必须支持并发调用。
type Generator interface {
	Generate(ctx context.Context, prompt string, pdfData []byte) (string, error)
}

// GeminiClient 基于 Google Gemini 官方 SDK 的实现。
// 客户端是长生命周期共享资源，在 main 里初始化一次。
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("缺少 AI_GEMINI_API_KEY 配置")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 Gemini 客户端失败: %w", err)
	}

	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string, pdfData []byte) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(pdfData, "application/pdf"),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini 调用失败: %w", err)
	}
	return resp.Text(), nil
}
