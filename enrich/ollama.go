package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type OllamaConfig struct {
	BaseURL           string
	Model             string
	RequestsPerMinute int
	HTTPClient        httpDoer
}

// OllamaService rewrites work notes through an Ollama-compatible chat
// endpoint using a numbered-list prompt, so batch order survives the round
// trip and can be checked line by line.
type OllamaService struct {
	baseURL    string
	model      string
	limiter    *rate.Limiter
	httpClient httpDoer
}

var _ Service = (*OllamaService)(nil)

func NewOllamaService(cfg OllamaConfig) (*OllamaService, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("enrichment base URL is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("enrichment model is required")
	}

	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	doer := cfg.HTTPClient
	if doer == nil {
		doer = &http.Client{Timeout: 60 * time.Second}
	}

	return &OllamaService{
		baseURL:    baseURL,
		model:      model,
		limiter:    rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		httpClient: doer,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

const rewriteSystemPrompt = `Rewrite each numbered work note into a single, professional, past-tense sentence.

STRICT RULES:
1. Return ONLY a numbered list with exactly one line per input, in the same order.
2. Keep issue keys, identifiers, and numbers exactly as written.
3. Do not invent work that is not in the note.
4. Do not add bullet symbols or commentary.`

func (s *OllamaService) EnrichBatch(ctx context.Context, batch []Request) ([]Rewrite, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var sb strings.Builder
	for i, req := range batch {
		fmt.Fprintf(&sb, "%d. [%s] %s", i+1, req.Source, strings.TrimSpace(req.RawText))
		if len(req.LinkedRefs) > 0 {
			fmt.Fprintf(&sb, " (refs: %s)", strings.Join(req.LinkedRefs, ", "))
		}
		sb.WriteByte('\n')
	}

	content, err := s.chat(ctx, rewriteSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	lines, err := parseNumberedList(content, len(batch))
	if err != nil {
		return nil, err
	}

	rewrites := make([]Rewrite, len(batch))
	for i, req := range batch {
		rewrites[i] = Rewrite{ID: req.ID, Text: lines[i]}
	}
	return rewrites, nil
}

func (s *OllamaService) chat(ctx context.Context, system, user string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("enrichment request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("enrichment service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}

	content := strings.TrimSpace(parsed.Message.Content)
	if content == "" {
		return "", errors.New("enrichment service returned empty content")
	}
	return content, nil
}

var numberedLinePattern = regexp.MustCompile(`^\s*(\d+)[.)]\s*(.+)$`)

// parseNumberedList extracts exactly want lines numbered 1..want in order.
// Anything else violates the batch contract and fails the whole batch.
func parseNumberedList(content string, want int) ([]string, error) {
	out := make([]string, 0, want)
	for _, line := range strings.Split(content, "\n") {
		match := numberedLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		number, err := strconv.Atoi(match[1])
		if err != nil || number != len(out)+1 {
			return nil, fmt.Errorf("numbered list out of order: got %s, want %d", match[1], len(out)+1)
		}
		out = append(out, strings.TrimSpace(match[2]))
	}
	if len(out) != want {
		return nil, fmt.Errorf("numbered list has %d entries, want %d", len(out), want)
	}
	return out, nil
}
