package transport

import (
	"context"
	"fmt"
	"strings"

	"versechat/internal/models"

	"github.com/cloudwego/eino/schema"
)

const maxFollowUps = 3

// SuggestFollowUps asks the model for up to three next questions a reader
// might want to explore after the given answer.
func (e *Engine) SuggestFollowUps(ctx context.Context, answer, question string, mode models.Mode) ([]string, error) {
	systemPrompt := "You suggest follow-up questions for a Bible study conversation. " +
		"Given a question and the answer it received, propose up to three short follow-up questions the reader might ask next. " +
		"Output one question per line with no numbering, bullets, or extra text."
	if mode == models.ModeDevotional {
		systemPrompt += " Favor questions about personal application."
	}

	userContent := fmt.Sprintf("Question: %s\n\nAnswer:\n%s", question, answer)
	resp, err := e.chatModel.Generate(ctx, []*schema.Message{
		{Role: schema.System, Content: systemPrompt},
		{Role: schema.User, Content: userContent},
	})
	if err != nil {
		return nil, fmt.Errorf("generate follow-ups failed: %w", err)
	}
	return parseFollowUps(resp.Content), nil
}

func parseFollowUps(content string) []string {
	var followUps []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• \t")
		// strip "1." / "2)" style numbering
		if len(line) >= 2 && line[0] >= '0' && line[0] <= '9' && (line[1] == '.' || line[1] == ')') {
			line = strings.TrimSpace(line[2:])
		}
		if line == "" {
			continue
		}
		followUps = append(followUps, line)
		if len(followUps) == maxFollowUps {
			break
		}
	}
	return followUps
}
