package enrichment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

const (
	defaultOpenRouterURL = "https://openrouter.ai/api/v1/chat/completions"
	extractionModel      = "openai/gpt-4o-mini"
)

const extractionPrompt = `You are an expert assistant for structured data extraction. You will receive a text summary of Google search results about one company. Each block contains the search query followed by result entries with a title, a link and a snippet.

Identify all relevant contacts:
1. High-level decision makers (Owner, Founder, Co-Founder, CEO, CFO, COO, President, Chairman, Co-Owner, Managing Partner, Principal).
2. Mid-level contacts (VP-level positions, General Manager).
3. Generic company emails (info@, contact@, sales@ and similar).

For each contact return:
- first_name: first name only, properly capitalized; empty string for generic emails.
- last_name: last name only, properly capitalized; empty string for generic emails.
- title: the exact job title as written, or "Generic Email".
- linkedin_url: a personal profile URL containing linkedin.com/in/, otherwise empty string.
- generic_email: the generic email address if applicable, otherwise empty string.
- source_url: the result URL the contact was identified from.

If the same person appears with different titles, include them once with the most complete title. Include each generic email at most once and skip obfuscated addresses. Ignore titles like Engineer, Recruiter, Technician or HR, and placeholder names. Do not invent data; only extract what is present in the text.

Return ONLY a JSON array of contacts, no explanation. If no contacts are found, return [].`

type rawContact struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Title        string `json:"title"`
	LinkedInURL  string `json:"linkedin_url"`
	GenericEmail string `json:"generic_email"`
	SourceURL    string `json:"source_url"`
}

// OpenRouterClient extracts structured contacts from search summaries via an
// LLM behind the OpenRouter API.
type OpenRouterClient struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

func NewOpenRouterClient(apiKey string) *OpenRouterClient {
	return &OpenRouterClient{
		apiKey: apiKey,
		url:    defaultOpenRouterURL,
		model:  extractionModel,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Extract sends the formatted search summary through the extraction prompt
// and parses the returned contact array.
func (o *OpenRouterClient) Extract(ctx context.Context, summary string) ([]rawContact, error) {
	body, err := sonic.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: extractionPrompt},
			{Role: "user", Content: "Here's the output of the google search results:\n" + summary},
		},
		Temperature: 0.1,
		MaxTokens:   4000,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openrouter returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed chatResponse
	if err := sonic.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode openrouter response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openrouter returned no choices")
	}

	content := stripCodeFence(parsed.Choices[0].Message.Content)
	var contacts []rawContact
	if err := sonic.Unmarshal([]byte(content), &contacts); err != nil {
		return nil, fmt.Errorf("parse extracted contacts: %w", err)
	}
	return contacts, nil
}

// stripCodeFence unwraps the JSON payload when the model wraps it in a
// markdown code block.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "```json"); idx >= 0 {
		content = content[idx+len("```json"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
		return strings.TrimSpace(content)
	}
	if idx := strings.Index(content, "```"); idx >= 0 {
		content = content[idx+len("```"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
		return strings.TrimSpace(content)
	}
	return content
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
