package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	claudeagent "github.com/kazz187/claude-agent-sdk-go"
)

// ClaudeBackend generates through the Claude agent SDK. The SDK has no native
// response schema, so the schema is part of the system prompt and the JSON
// object is cut out of the reply.
type ClaudeBackend struct {
	workDir string
}

func NewClaudeBackend(workDir string) *ClaudeBackend {
	return &ClaudeBackend{workDir: workDir}
}

func (b *ClaudeBackend) Name() string {
	return "claude"
}

func (b *ClaudeBackend) Generate(ctx context.Context, req Request) ([]byte, error) {
	schema, err := json.Marshal(req.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	system := req.Conversation.System() +
		"\n\nRespond with a single JSON object matching this JSON Schema and nothing else:\n" + string(schema)

	maxTurns := 1
	opts := &claudeagent.ClaudeAgentOptions{
		SystemPrompt: system,
		Cwd:          b.workDir,
		MaxTurns:     &maxTurns,
	}
	result, err := claudeagent.RunQuerySync(ctx, req.Conversation.Transcript(), opts)
	if err != nil {
		return nil, fmt.Errorf("claude query: %w", err)
	}
	if result.Result == nil {
		return nil, errors.New("claude returned no result")
	}
	if result.Result.IsError {
		return nil, fmt.Errorf("claude returned an error: %s", result.Result.Result)
	}
	return extractJSONObject(result.Result.Result)
}

// extractJSONObject returns the outermost {...} of s, tolerating code fences
// and prose around it.
func extractJSONObject(s string) ([]byte, error) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrSchemaViolation)
	}
	return []byte(s[start : end+1]), nil
}
