package scripturepath

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Boniqx/scripture-path/internal/logger"
)

// PromptFormat selects how the model must answer
type PromptFormat int

const (
	// FormatText is free text (section markup).
	FormatText PromptFormat = iota
	// FormatJSON is a single JSON object (full studies).
	FormatJSON
	// FormatQuiz is a JSON array of quiz questions.
	FormatQuiz
)

// Prompt is one request to a text generator
type Prompt struct {
	Name   string // used in logs and transcripts
	System string
	User   string
	Format PromptFormat
	Tier   Tier
}

// TextGenerator produces raw model output for a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// OpenAIConfig configures an OpenAIGenerator
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// ScribeModel serves TierScribe callers; Model is used when it is empty.
	ScribeModel string
}

// OpenAIGenerator generates text with the OpenAI chat completions API
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	scribeModel string
	log         *logger.Logger
}

// NewOpenAIGenerator creates a generator with an OpenAI client
func NewOpenAIGenerator(cfg OpenAIConfig, log *logger.Logger) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		scribeModel: cfg.ScribeModel,
		log:         log.With("component", "OpenAIGenerator"),
	}
}

func (g *OpenAIGenerator) modelFor(tier Tier) string {
	if tier == TierScribe && g.scribeModel != "" {
		return g.scribeModel
	}
	return g.model
}

// Generate sends the prompt and returns the model's answer. For FormatQuiz
// the answer is the JSON array submitted through the quiz tool.
func (g *OpenAIGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	model := g.modelFor(p.Tier)
	g.log.Debug("generating", "prompt", p.Name, "model", model)

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: p.System,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: p.User,
			},
		},
	}
	switch p.Format {
	case FormatJSON:
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	case FormatQuiz:
		req.Tools = []openai.Tool{quizTool}
		req.ToolChoice = openai.ToolChoice{
			Type: openai.ToolTypeFunction,
			Function: openai.ToolFunction{
				Name: quizToolName,
			},
		}
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", p.Name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from %s", model)
	}
	g.log.Debug("generated", "prompt", p.Name, "usage_total", resp.Usage.TotalTokens)

	choice := resp.Choices[0]
	if p.Format != FormatQuiz {
		return choice.Message.Content, nil
	}

	if len(choice.Message.ToolCalls) == 0 {
		// Some models answer in plain content anyway; let validation decide.
		return choice.Message.Content, nil
	}
	toolCall := choice.Message.ToolCalls[0]
	if toolCall.Function.Name != quizToolName {
		return "", fmt.Errorf("unexpected tool call: %s", toolCall.Function.Name)
	}
	var toolArgs struct {
		Questions json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &toolArgs); err != nil {
		return "", fmt.Errorf("failed to parse tool arguments: %w", err)
	}
	return string(toolArgs.Questions), nil
}

const quizToolName = "submit_quiz"

var quizTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        quizToolName,
		Description: "Submit theological quiz questions",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"questions": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"question": map[string]interface{}{
								"type":        "string",
								"description": "The question text",
							},
							"options": map[string]interface{}{
								"type": "array",
								"items": map[string]interface{}{
									"type": "string",
								},
								"description": "Array of 4 multiple choice options",
							},
							"correctAnswerIndex": map[string]interface{}{
								"type":        "integer",
								"description": "0-based index of the correct answer",
							},
							"explanation": map[string]interface{}{
								"type":        "string",
								"description": "Brief explanation of why the answer is correct",
							},
						},
						"required": []string{"question", "options", "correctAnswerIndex"},
					},
				},
			},
			"required": []string{"questions"},
		},
	},
}
