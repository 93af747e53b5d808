// Package scoring rates applicants against a job with an LLM.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/hireloop/hireloop/internal/model"
)

// ErrUnparseableResponse is returned when the model does not answer with
// the expected JSON object.
var ErrUnparseableResponse = errors.New("unparseable scoring response")

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-2.5-flash"

	maxResumeChars = 20000
	maxListItems   = 5
)

// Result is a parsed assessment.
type Result struct {
	Score     int
	Summary   string
	Strengths []string
	Concerns  []string
}

// Scorer builds prompts and parses assessments.
type Scorer struct {
	llm llms.Model
}

// NewScorer creates a Scorer on top of any langchaingo model.
func NewScorer(llm llms.Model) *Scorer {
	return &Scorer{llm: llm}
}

// NewGeminiScorer creates a Scorer backed by Google's Gemini API.
func NewGeminiScorer(ctx context.Context, apiKey, modelName string) (*Scorer, error) {
	if apiKey == "" {
		return nil, errors.New("LLM API key is required")
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(modelName),
	)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return NewScorer(llm), nil
}

// Score rates the candidate's fit for the job.
func (s *Scorer) Score(ctx context.Context, job *model.Job, candidate *model.CandidateProfile, coverLetter string) (*Result, error) {
	prompt := BuildPrompt(job, candidate, coverLetter)
	resp, err := llms.GenerateFromSinglePrompt(ctx, s.llm, prompt, llms.WithTemperature(0))
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	return ParseResponse(resp)
}

const promptTemplate = `You are an experienced technical recruiter. Rate how well the candidate fits the job.

### OUTPUT
Answer with a single JSON object and nothing else:
{"score": <integer 0-100>, "summary": "<two sentences>", "strengths": ["..."], "concerns": ["..."]}

Judge only the evidence below. Do not guess missing information.

### JOB
Title: %s
Description:
%s
Requirements:
%s

### CANDIDATE
Headline: %s
Location: %s
Years of experience: %d
Skills: %s
Resume:
%s
Cover letter:
%s
`

// BuildPrompt renders the assessment prompt. Long resumes are truncated.
func BuildPrompt(job *model.Job, c *model.CandidateProfile, coverLetter string) string {
	var reqs strings.Builder
	for _, r := range job.Requirements {
		reqs.WriteString("- ")
		reqs.WriteString(r)
		reqs.WriteString("\n")
	}
	resume := c.ResumeText
	if len(resume) > maxResumeChars {
		resume = resume[:maxResumeChars]
	}
	return fmt.Sprintf(promptTemplate,
		job.Title,
		orNone(job.Description),
		orNone(strings.TrimSuffix(reqs.String(), "\n")),
		orNone(c.Headline),
		orNone(c.Location),
		c.YearsExperience,
		orNone(strings.Join(c.Skills, ", ")),
		orNone(resume),
		orNone(coverLetter),
	)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}

type rawResult struct {
	Score     *float64 `json:"score"`
	Summary   string   `json:"summary"`
	Strengths []string `json:"strengths"`
	Concerns  []string `json:"concerns"`
}

// ParseResponse extracts the assessment from a model reply. Markdown code
// fences and surrounding prose are tolerated; the score is clamped to
// 0..100.
func ParseResponse(text string) (*Result, error) {
	body := extractObject(text)
	if body == "" {
		return nil, ErrUnparseableResponse
	}
	var raw rawResult
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableResponse, err)
	}
	if raw.Score == nil {
		return nil, fmt.Errorf("%w: missing score", ErrUnparseableResponse)
	}

	score := int(*raw.Score + 0.5)
	score = max(0, min(100, score))
	return &Result{
		Score:     score,
		Summary:   strings.TrimSpace(raw.Summary),
		Strengths: cleanList(raw.Strengths),
		Concerns:  cleanList(raw.Concerns),
	}, nil
}

// extractObject strips code fences and returns the outermost {...} span.
func extractObject(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
		if len(out) == maxListItems {
			break
		}
	}
	return out
}
