package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// FileAnalysis is the structured result of analyzing uploaded material.
type FileAnalysis struct {
	Summary        string          `json:"summary"`
	Tags           []string        `json:"tags"`
	Difficulty     string          `json:"difficulty"`
	Subject        string          `json:"subject"`
	QuizCandidates []QuizCandidate `json:"quizQuestions"`
}

// QuizCandidate is one suggested quiz question derived from content.
type QuizCandidate struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      int      `json:"correctAnswer"`
	Explanation string   `json:"explanation"`
}

// Answer is a generated response to a student question.
type Answer struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

// GeminiEngine calls the Gemini API to analyze content and answer questions.
type GeminiEngine struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiEngine builds the engine from an API key and model name.
func NewGeminiEngine(ctx context.Context, apiKey, modelName string) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("analysis API key not configured")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.3)

	return &GeminiEngine{client: client, model: model}, nil
}

// Close releases the underlying client.
func (e *GeminiEngine) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

// AnalyzeContent asks the model for a structured analysis of the material.
func (e *GeminiEngine) AnalyzeContent(ctx context.Context, content, fileName, mimeType string) (*FileAnalysis, error) {
	content = truncateUTF8(content, maxPromptContentBytes)
	prompt := fmt.Sprintf(`Analyze this %s file named %q and provide a comprehensive analysis.

Content: %s

Please provide:
1. A detailed content summary (2-3 sentences)
2. Key topics/tags (5-8 relevant tags)
3. Difficulty level (easy/medium/hard)
4. Subject category (e.g., Mathematics, Science, Literature)
5. Suggested quiz questions (3-5 questions with answers)

Respond strictly in JSON format:
{
  "summary": "detailed summary of the content",
  "tags": ["tag1", "tag2"],
  "difficulty": "easy|medium|hard",
  "subject": "subject category",
  "quizQuestions": [
    {"question": "...", "options": ["A", "B", "C", "D"], "correctAnswer": 0, "explanation": "..."}
  ]
}`, mimeType, fileName, content)

	raw, err := e.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var analysis FileAnalysis
	if err := decodeJSONPayload(raw, &analysis); err != nil {
		return nil, fmt.Errorf("parse analysis response: %w", err)
	}
	if analysis.Summary == "" {
		return nil, fmt.Errorf("analysis response missing summary")
	}
	return &analysis, nil
}

// AnswerQuestion generates a tutoring answer for a student question.
func (e *GeminiEngine) AnswerQuestion(ctx context.Context, question, questionContext string) (*Answer, error) {
	prompt := fmt.Sprintf(`You are an AI teaching assistant. Answer this student question based on the provided context.

Context: %s
Question: %s

Provide a helpful, educational response that directly answers the question,
adds context where useful, and stays appropriate for classroom use. Keep it
concise (2-3 paragraphs max).

Respond strictly in JSON format:
{"content": "your answer", "confidence": 0.8}`, questionContext, question)

	raw, err := e.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var answer Answer
	if err := decodeJSONPayload(raw, &answer); err != nil {
		return nil, fmt.Errorf("parse answer response: %w", err)
	}
	if answer.Content == "" {
		return nil, fmt.Errorf("answer response missing content")
	}
	if answer.Confidence <= 0 || answer.Confidence > 1 {
		answer.Confidence = 0.5
	}
	return &answer, nil
}

func (e *GeminiEngine) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := e.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}

const maxPromptContentBytes = 3000

// truncateUTF8 caps s at limit bytes without splitting a multibyte rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// decodeJSONPayload tolerates markdown code fences and prose around the JSON
// object, which smaller models produce routinely.
func decodeJSONPayload(raw string, dest interface{}) error {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	match := jsonObjectRe.FindString(cleaned)
	if match == "" {
		return fmt.Errorf("no JSON object in response")
	}
	return json.Unmarshal([]byte(match), dest)
}
