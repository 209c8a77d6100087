package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"versechat/internal/config"
	"versechat/internal/models"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// Engine is the eino-backed Transport and Suggester.
type Engine struct {
	chatModel model.ToolCallingChatModel
	agent     *react.Agent
}

// NewEngine builds the streaming engine for a configured provider.
func NewEngine(cfg *config.Config, provider, modelName string) (*Engine, error) {
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	if modelName == "" {
		modelName = provCfg.Model
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(context.Background(), &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(context.Background(), &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	var reactAgent *react.Agent
	if tools := initStudyTools(); len(tools) > 0 {
		reactAgent, err = react.NewAgent(context.Background(), &react.AgentConfig{
			ToolCallingModel: chatModel,
			ToolsConfig: compose.ToolsNodeConfig{
				Tools: tools,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("init react agent: %w", err)
		}
	}

	return &Engine{chatModel: chatModel, agent: reactAgent}, nil
}

// Stream runs one request and feeds the accumulated content to onToken
// after every chunk.
func (e *Engine) Stream(ctx context.Context, req Request, onToken func(string) error) (*Answer, error) {
	messages := buildMessages(req)

	var (
		streamReader *schema.StreamReader[*schema.Message]
		err          error
	)
	if e.agent != nil {
		streamReader, err = e.agent.Stream(withAttachments(ctx, req.Attachments), messages)
	} else {
		streamReader, err = e.chatModel.Stream(ctx, messages)
	}
	if err != nil {
		return nil, Classify(err)
	}
	defer streamReader.Close()

	var fullContent string
	for {
		chunk, recvErr := streamReader.Recv()
		if recvErr != nil {
			if errors.Is(recvErr, io.EOF) {
				break
			}
			return nil, Classify(recvErr)
		}
		if chunk.Content == "" {
			continue
		}
		fullContent += chunk.Content
		if onToken != nil {
			if err := onToken(fullContent); err != nil {
				return nil, Classify(err)
			}
		}
	}
	return &Answer{
		Content:   fullContent,
		Citations: extractCitations(fullContent, req.Translation),
	}, nil
}

func buildMessages(req Request) []*schema.Message {
	messages := []*schema.Message{{
		Role:    schema.System,
		Content: systemPrompt(req.Mode, req.Translation),
	}}

	for _, msg := range req.History {
		var role schema.RoleType
		switch msg.Role {
		case models.RoleUser:
			role = schema.User
		case models.RoleAssistant:
			role = schema.Assistant
		default:
			continue
		}
		messages = append(messages, &schema.Message{Role: role, Content: msg.Content})
	}

	messages = append(messages, &schema.Message{Role: schema.User, Content: userPrompt(req)})
	return messages
}

func systemPrompt(mode models.Mode, translation string) string {
	var b strings.Builder
	b.WriteString("You are a thoughtful Bible study companion. ")
	switch mode {
	case models.ModeDevotional:
		b.WriteString("Answer devotionally, with warmth and personal application. ")
	case models.ModePrayer:
		b.WriteString("Answer pastorally, offering prayer-centered guidance. ")
	default:
		b.WriteString("Answer with careful attention to context, original language, and cross-references. ")
	}
	if translation != "" {
		fmt.Fprintf(&b, "Quote scripture from the %s translation. ", translation)
	}
	b.WriteString("Cite every passage you reference in Book Chapter:Verse form.")
	return b.String()
}

func userPrompt(req Request) string {
	switch req.Kind {
	case KindContinuation:
		return fmt.Sprintf(
			"Your previous answer to the question %q was cut off. Continue it from exactly where it stopped. Do not repeat anything already said.",
			req.Prompt,
		)
	case KindShorten:
		return fmt.Sprintf("Answer briefly, in at most three sentences: %s", req.Prompt)
	case KindDeepen:
		return fmt.Sprintf("Go deeper on this question, including historical context and original-language insight: %s", req.Prompt)
	default:
		return req.Prompt
	}
}

// citationPattern matches "John 3:16", "1 Corinthians 13:4-7" and similar.
var citationPattern = regexp.MustCompile(`\b((?:[1-3]\s)?[A-Z][a-z]+(?:\s[A-Z][a-z]+)?)\s(\d{1,3}:\d{1,3}(?:[-–]\d{1,3})?)`)

func extractCitations(content, translation string) []models.Citation {
	matches := citationPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var citations []models.Citation
	for _, m := range matches {
		ref := m[1] + " " + m[2]
		if seen[ref] {
			continue
		}
		seen[ref] = true
		citations = append(citations, models.Citation{Reference: ref, Translation: translation})
	}
	return citations
}
