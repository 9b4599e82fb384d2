// Package llm talks to an OpenAI-compatible vision model to detect filled
// bubbles on scanned answer sheets and to draft exam templates.
package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/linkalls/marksheet/internal/exam"
	"github.com/linkalls/marksheet/internal/llm/prompts"
	"github.com/linkalls/marksheet/internal/model"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gpt-4o"

var (
	// ErrNoAPIKey is returned when a call is attempted without an API key.
	ErrNoAPIKey = errors.New("API key not configured")
	// ErrEmptyResponse is returned when the model produced no usable output.
	ErrEmptyResponse = errors.New("model response has no parsed output")
	// ErrRefusal is returned when the model declines the request.
	ErrRefusal = errors.New("model refused the request")
	// ErrFileTooLarge is returned for uploads over the size limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrUnsupportedFile is returned for uploads that are not images.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrNoSource is returned when generation gets neither text nor an image.
	ErrNoSource = errors.New("no exam source provided")
)

// Image is an uploaded scan or photo.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

func (img Image) dataURL() string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func (img Image) check(maxMB int) error {
	if !exam.ValidateFileSize(int64(len(img.Data)), maxMB) {
		return fmt.Errorf("%w: %s exceeds %dMB", ErrFileTooLarge, img.Name, maxMB)
	}
	if !strings.HasPrefix(strings.ToLower(img.MIMEType), "image/") {
		return fmt.Errorf("%w: %s (%s)", ErrUnsupportedFile, img.Name, img.MIMEType)
	}
	return nil
}

// Config configures a Client.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxFileMB int
	Retry     RetryPolicy
	Logger    *slog.Logger
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api       *openai.Client
	model     string
	hasKey    bool
	maxFileMB int
	retry     RetryPolicy
	log       *slog.Logger
}

// New creates a new LLM client. A missing API key is reported on the first
// call rather than here.
func New(cfg Config) *Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxFileMB <= 0 {
		cfg.MaxFileMB = exam.DefaultMaxFileMB
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		api:       openai.NewClientWithConfig(config),
		model:     cfg.Model,
		hasKey:    strings.TrimSpace(cfg.APIKey) != "",
		maxFileMB: cfg.MaxFileMB,
		retry:     cfg.Retry.withDefaults(),
		log:       cfg.Logger,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

type visionResponse struct {
	Results []model.VisionGradeResult `json:"results"`
}

var visionSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"results": {
			Type: jsonschema.Array,
			Items: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"id":     {Type: jsonschema.String},
					"filled": {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.Integer}},
				},
				Required: []string{"id", "filled"},
			},
		},
	},
	Required: []string{"results"},
}

// Detect asks the model which options are filled on the answer sheet in img.
// Only mark questions are sent. Unknown ids and out-of-range indices are
// dropped, and a question whose remaining selection is empty gets nil.
func (c *Client) Detect(ctx context.Context, cfg model.ExamConfig, img Image) ([]model.VisionGradeResult, error) {
	questions := prompts.MarkQuestions(cfg)
	if len(questions) == 0 {
		return []model.VisionGradeResult{}, nil
	}
	if err := img.check(c.maxFileMB); err != nil {
		return nil, err
	}

	system, err := prompts.DetectSystem()
	if err != nil {
		return nil, err
	}
	user, err := prompts.DetectUser(questions, "image")
	if err != nil {
		return nil, err
	}

	var parsed visionResponse
	err = c.complete(ctx, "vision_grade_results", visionSchema, system, []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: user},
		imagePart(img),
	}, &parsed)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(questions))
	for _, q := range questions {
		counts[q.ID] = q.OptionsCount
	}
	out := make([]model.VisionGradeResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		n, ok := counts[r.ID]
		if !ok {
			continue
		}
		var filled []int
		for _, idx := range r.Filled {
			if idx >= 0 && idx < n {
				filled = append(filled, idx)
			}
		}
		out = append(out, model.VisionGradeResult{ID: r.ID, Filled: filled})
	}
	c.log.Debug("vision detection parsed", "questions", len(questions), "results", len(out))
	return out, nil
}

// GenerateRequest holds the exam source for Generate. Either Text or Source
// must be set. AnswerKey is optional.
type GenerateRequest struct {
	Text      string
	Source    *Image
	AnswerKey *Image
}

var examSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"title": {Type: jsonschema.String},
		"questions": {
			Type: jsonschema.Array,
			Items: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"id":             {Type: jsonschema.String},
					"label":          {Type: jsonschema.String},
					"points":         {Type: jsonschema.Integer},
					"type":           {Type: jsonschema.String, Enum: []string{string(model.QuestionMark), string(model.QuestionText)}},
					"optionsCount":   {Type: jsonschema.Integer},
					"optionStyle":    {Type: jsonschema.String, Enum: styleNames()},
					"correctOptions": {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.Integer}},
					"boxHeight":      {Type: jsonschema.String, Enum: heightNames()},
				},
				Required: []string{"id", "label", "points", "type"},
			},
		},
	},
	Required: []string{"title", "questions"},
}

func styleNames() []string {
	out := make([]string, len(model.OptionStyles))
	for i, s := range model.OptionStyles {
		out[i] = string(s)
	}
	return out
}

func heightNames() []string {
	out := make([]string, len(model.BoxHeights))
	for i, h := range model.BoxHeights {
		out[i] = string(h)
	}
	return out
}

// Generate drafts an exam template from source text or an image of the exam,
// optionally reading correct answers from an answer key image. The result is
// normalized but not validated.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (model.ExamConfig, error) {
	if strings.TrimSpace(req.Text) == "" && req.Source == nil {
		return model.ExamConfig{}, ErrNoSource
	}
	for _, img := range []*Image{req.Source, req.AnswerKey} {
		if img == nil {
			continue
		}
		if err := img.check(c.maxFileMB); err != nil {
			return model.ExamConfig{}, err
		}
	}

	system, err := prompts.GenerateSystem()
	if err != nil {
		return model.ExamConfig{}, err
	}

	var parts []openai.ChatMessagePart
	if req.Source != nil {
		parts = append(parts,
			openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: "Build an exam config from this image."},
			imagePart(*req.Source),
		)
	} else {
		text, err := prompts.GenerateFromText(req.Text)
		if err != nil {
			return model.ExamConfig{}, err
		}
		parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: text})
	}
	if req.AnswerKey != nil {
		parts = append(parts,
			openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: "Below is the ANSWER KEY/SOURCE for the exam above:"},
			imagePart(*req.AnswerKey),
		)
	}

	var parsed model.ExamConfigInput
	if err := c.complete(ctx, "exam_config", examSchema, system, parts, &parsed); err != nil {
		return model.ExamConfig{}, err
	}
	cfg := exam.NormalizeConfig(parsed)
	c.log.Debug("exam generated", "title", cfg.Title, "questions", len(cfg.Questions))
	return cfg, nil
}

func imagePart(img Image) openai.ChatMessagePart {
	return openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{
			URL:    img.dataURL(),
			Detail: openai.ImageURLDetailHigh,
		},
	}
}

// complete runs one structured chat completion with retries and decodes the
// JSON answer into out.
func (c *Client) complete(ctx context.Context, name string, schema jsonschema.Definition, system string, parts []openai.ChatMessagePart, out any) error {
	if !c.hasKey {
		return ErrNoAPIKey
	}

	c.log.Debug("calling structured output", "model", c.model, "schema", name, "parts", len(parts))

	raw, err := withRetry(ctx, c, name, func(ctx context.Context) (string, error) {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, MultiContent: parts},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:   name,
					Schema: &schema,
				},
			},
			Temperature: 0.1,
		})
		if err != nil {
			return "", fmt.Errorf("LLM API call: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", ErrEmptyResponse
		}
		msg := resp.Choices[0].Message
		if msg.Refusal != "" {
			return "", fmt.Errorf("%w: %s", ErrRefusal, msg.Refusal)
		}
		if strings.TrimSpace(msg.Content) == "" {
			return "", ErrEmptyResponse
		}
		if err := json.Unmarshal([]byte(msg.Content), out); err != nil {
			return "", fmt.Errorf("parse LLM response: %w (raw: %s)", err, msg.Content)
		}
		return msg.Content, nil
	})
	if err != nil {
		c.log.Debug("structured output failed", "schema", name, "error", err)
		return err
	}
	c.log.Debug("LLM response", "schema", name, "raw", raw)
	return nil
}
