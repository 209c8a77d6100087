package transport

import (
	"strings"
	"testing"

	"versechat/internal/models"

	"github.com/cloudwego/eino/schema"
)

func TestBuildMessagesOrdersHistory(t *testing.T) {
	req := Request{
		Kind:   KindNormal,
		Prompt: "What comes next?",
		Mode:   models.ModeStudy,
		History: []*models.Message{
			{Role: models.RoleUser, Content: "first question"},
			{Role: models.RoleAssistant, Content: "first answer"},
			{Role: models.RoleSafety, Content: "safety notice"},
		},
	}
	messages := buildMessages(req)

	if len(messages) != 4 {
		t.Fatalf("expected system + 2 history + user, got %d", len(messages))
	}
	if messages[0].Role != schema.System {
		t.Fatalf("first message role = %s", messages[0].Role)
	}
	if messages[1].Role != schema.User || messages[1].Content != "first question" {
		t.Fatalf("history user message wrong: %#v", messages[1])
	}
	if messages[2].Role != schema.Assistant || messages[2].Content != "first answer" {
		t.Fatalf("history assistant message wrong: %#v", messages[2])
	}
	// safety notices are local UI artifacts, never sent to the provider
	for _, m := range messages {
		if m.Content == "safety notice" {
			t.Fatalf("safety notice leaked into provider messages")
		}
	}
	if messages[3].Role != schema.User || messages[3].Content != "What comes next?" {
		t.Fatalf("final user message wrong: %#v", messages[3])
	}
}

func TestSystemPromptVariesByMode(t *testing.T) {
	study := systemPrompt(models.ModeStudy, "ESV")
	if !strings.Contains(study, "cross-references") || !strings.Contains(study, "ESV") {
		t.Fatalf("study prompt missing study cues: %q", study)
	}
	devotional := systemPrompt(models.ModeDevotional, "")
	if !strings.Contains(devotional, "devotionally") {
		t.Fatalf("devotional prompt: %q", devotional)
	}
	if strings.Contains(devotional, "translation") {
		t.Fatalf("empty translation must not be mentioned: %q", devotional)
	}
	prayer := systemPrompt(models.ModePrayer, "NIV")
	if !strings.Contains(prayer, "pastorally") {
		t.Fatalf("prayer prompt: %q", prayer)
	}
}

func TestUserPromptByKind(t *testing.T) {
	base := Request{Prompt: "Explain Romans 8"}

	normal := base
	normal.Kind = KindNormal
	if got := userPrompt(normal); got != "Explain Romans 8" {
		t.Fatalf("normal prompt = %q", got)
	}

	cont := base
	cont.Kind = KindContinuation
	got := userPrompt(cont)
	if !strings.Contains(got, `"Explain Romans 8"`) || !strings.Contains(got, "cut off") {
		t.Fatalf("continuation prompt must reference the original question: %q", got)
	}
	if !strings.Contains(got, "Do not repeat") {
		t.Fatalf("continuation prompt must forbid repetition: %q", got)
	}

	short := base
	short.Kind = KindShorten
	if got := userPrompt(short); !strings.Contains(got, "three sentences") {
		t.Fatalf("shorten prompt = %q", got)
	}

	deep := base
	deep.Kind = KindDeepen
	if got := userPrompt(deep); !strings.Contains(got, "historical context") {
		t.Fatalf("deepen prompt = %q", got)
	}
}

func TestExtractCitations(t *testing.T) {
	content := "Paul opens with John 3:16 and echoes it in 1 Corinthians 13:4-7. " +
		"He returns to John 3:16 later, then cites Song 2:1."
	citations := extractCitations(content, "ESV")

	refs := make([]string, 0, len(citations))
	for _, c := range citations {
		refs = append(refs, c.Reference)
		if c.Translation != "ESV" {
			t.Fatalf("citation translation = %q", c.Translation)
		}
	}
	want := []string{"John 3:16", "1 Corinthians 13:4-7", "Song 2:1"}
	if len(refs) != len(want) {
		t.Fatalf("citations = %v, want %v", refs, want)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Fatalf("citation %d = %q, want %q", i, refs[i], want[i])
		}
	}
}

func TestExtractCitationsNoMatches(t *testing.T) {
	if got := extractCitations("no scripture here", "ESV"); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
