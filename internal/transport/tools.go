package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"versechat/internal/models"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

const attachmentTextLimit = 8000

func initStudyTools() []tool.BaseTool {
	var tools []tool.BaseTool
	if ss := initStudySearch(); ss != nil {
		tools = append(tools, ss)
	}
	if ar := initAttachmentReader(); ar != nil {
		tools = append(tools, ar)
	}
	return tools
}

// initStudySearch builds the web lookup tool used for commentary and
// cross-reference questions, falling back from google to duckduckgo.
func initStudySearch() tool.InvokableTool {
	googleTool := initGoogleSearch()
	duckTool := initDDGSearch()
	if googleTool == nil && duckTool == nil {
		log.Printf("study search tool disabled: no search providers available")
		return nil
	}

	ss := &studySearchTool{google: googleTool, duck: duckTool}
	info := &schema.ToolInfo{
		Name: "study_search",
		Desc: "Search the web for commentary, historical background, or cross-references on a passage or topic; falls back to another provider if one fails.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "Natural language query, e.g. a passage reference or topic",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, ss.run)
}

type studySearchTool struct {
	google tool.InvokableTool
	duck   tool.InvokableTool
}

type studySearchParams struct {
	Query string `json:"query"`
}

func (s *studySearchTool) run(ctx context.Context, params *studySearchParams) (string, error) {
	if params == nil {
		return "", errors.New("missing search parameters")
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return "", errors.New("query must not be empty")
	}

	payloadBytes, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	payload := string(payloadBytes)

	if s.google != nil {
		if result, err := s.google.InvokableRun(ctx, payload); err == nil {
			return result, nil
		} else {
			log.Printf("google search failed: %v", err)
		}
	}
	if s.duck != nil {
		if result, err := s.duck.InvokableRun(ctx, payload); err == nil {
			return result, nil
		} else {
			log.Printf("duckduckgo search failed: %v", err)
		}
	}
	return "", errors.New("no search provider succeeded")
}

// attachment reader tool
type attachmentReader struct {
	loader *file.FileLoader
}

type attachmentReaderParams struct {
	Name string `json:"name"`
}

func initAttachmentReader() tool.InvokableTool {
	parserExt, err := parser.NewExtParser(context.Background(), &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		log.Printf("attachment reader disabled: %v", err)
		return nil
	}
	loader, err := file.NewFileLoader(context.Background(), &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		log.Printf("attachment reader disabled: %v", err)
		return nil
	}
	reader := &attachmentReader{loader: loader}
	info := &schema.ToolInfo{
		Name: "read_attachment",
		Desc: "Read a file the user attached to their message, such as a journal entry or study note. Provide the attachment name listed in the message.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"name": {
				Desc:     "Name of the attachment to read.",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, reader.run)
}

func (r *attachmentReader) run(ctx context.Context, params *attachmentReaderParams) (string, error) {
	if params == nil || strings.TrimSpace(params.Name) == "" {
		return "", errors.New("name is required")
	}
	attachments := attachmentsFromContext(ctx)
	if len(attachments) == 0 {
		return "", errors.New("no attachments on this message")
	}
	var target *models.Attachment
	for i := range attachments {
		if attachments[i].Name == params.Name {
			target = &attachments[i]
			break
		}
	}
	if target == nil {
		return "", errors.New("attachment not found on this message")
	}

	docs, err := r.loader.Load(ctx, document.Source{URI: target.Path})
	if err != nil {
		return "", fmt.Errorf("load attachment: %w", err)
	}
	var builder strings.Builder
	for _, doc := range docs {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}
		builder.WriteString(content)
		builder.WriteString("\n\n")
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", errors.New("attachment has no readable text content")
	}
	runes := []rune(text)
	if len(runes) > attachmentTextLimit {
		text = string(runes[:attachmentTextLimit])
	}
	return fmt.Sprintf("Attachment: %s\n\n%s", target.Name, text), nil
}

type attachmentContextKey struct{}

func withAttachments(ctx context.Context, attachments []models.Attachment) context.Context {
	if len(attachments) == 0 {
		return ctx
	}
	copied := append([]models.Attachment(nil), attachments...)
	return context.WithValue(ctx, attachmentContextKey{}, copied)
}

func attachmentsFromContext(ctx context.Context) []models.Attachment {
	val := ctx.Value(attachmentContextKey{})
	if val == nil {
		return nil
	}
	attachments, _ := val.([]models.Attachment)
	return attachments
}

func initDDGSearch() tool.InvokableTool {
	duckConfig := &duckduckgo.Config{
		ToolName:   "study_search_ddg",
		ToolDesc:   "DuckDuckGo Search Tool (no token required)",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    10 * time.Second,
	}
	duckTool, err := duckduckgo.NewTextSearchTool(context.Background(), duckConfig)
	if err != nil {
		log.Printf("duckduckgo search tool disabled: %v", err)
		return nil
	}
	return duckTool
}

func initGoogleSearch() tool.InvokableTool {
	googleAPIKey := os.Getenv("GOOGLE_API_KEY")
	googleSearchEngineID := os.Getenv("GOOGLE_SEARCH_ENGINE_ID")
	if googleAPIKey == "" || googleSearchEngineID == "" {
		log.Printf("google search tool disabled: missing GOOGLE_API_KEY or GOOGLE_SEARCH_ENGINE_ID")
		return nil
	}
	googleTool, err := googlesearch.NewTool(context.Background(), &googlesearch.Config{
		ToolName:       "study_search_google",
		ToolDesc:       "Google Search Tool",
		APIKey:         googleAPIKey,
		SearchEngineID: googleSearchEngineID,
		Lang:           "en",
		Num:            5,
	})
	if err != nil {
		log.Printf("google search tool disabled: %v", err)
		return nil
	}
	return googleTool
}
