/**
 * OpenAI vision engine - page transcription with a multimodal chat model
 *
 * The model returns plain text only, so geometry is estimated: paragraphs are
 * laid out as full-width vertical bands proportional to their line counts.
 * Works with any OpenAI-compatible gateway through base_url.
 */

package engine

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/ArmanBehnam/clark/internal/errors"
	"github.com/ArmanBehnam/clark/internal/logging"
	"github.com/ArmanBehnam/clark/internal/model"
)

const (
	openAIVisionDefaultModel = "gpt-4o-mini"
	openAIVisionConfidence   = 0.85
	openAIMaxInputBytes      = 20 * 1024 * 1024

	transcribePrompt = "Transcribe all text on this engineering drawing or document page exactly as written. " +
		"Preserve line breaks and separate blocks with a blank line. " +
		"Do not summarize, translate, or add commentary."
)

// OpenAIVisionConfig holds vision engine configuration
type OpenAIVisionConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Priority   int
	RateLimit  int
	HTTPClient *http.Client
}

// OpenAIVisionEngine transcribes pages with a vision-capable chat model.
type OpenAIVisionEngine struct {
	desc    Descriptor
	client  openai.Client
	model   string
	limiter *RateLimiter
	logger  *logging.Logger
}

// NewOpenAIVisionEngine creates a new vision engine
func NewOpenAIVisionEngine(cfg OpenAIVisionConfig) (*OpenAIVisionEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai_vision: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openAIVisionDefaultModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 180 * time.Second}
	}

	// Retries are owned by the orchestrator policy.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIVisionEngine{
		desc: Descriptor{
			Name:     "openai_vision",
			Priority: cfg.Priority,
			Capabilities: Capabilities{
				SupportsTables:  true,
				MaxInputBytes:   openAIMaxInputBytes,
				RequiresNetwork: true,
			},
			Cost: CostPaid,
		},
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		limiter: NewRateLimiter(cfg.RateLimit),
		logger:  logging.NewLogger("OpenAIVision"),
	}, nil
}

func (o *OpenAIVisionEngine) Descriptor() Descriptor { return o.desc }

func (o *OpenAIVisionEngine) Supports(in InputDescriptor) bool {
	return SupportsInput(o.desc.Capabilities, in)
}

// Recognize sends the page image and converts the transcription into elements.
func (o *OpenAIVisionEngine) Recognize(ctx context.Context, in Input, opts Options) (*Recognition, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, errors.NewEngineError(o.desc.Name, errors.KindTimeout, "rate limiter wait cancelled", err)
	}

	format := in.Format
	if format == "" {
		format = "png"
	}
	dataURL := fmt.Sprintf("data:image/%s;base64,%s", format, base64.StdEncoding.EncodeToString(in.Image))

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(transcribePrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(fmt.Sprintf("Page %d.", in.PageNumber)),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    dataURL,
					Detail: "high",
				}),
			}),
		},
		Temperature: openai.Float(0),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, o.mapError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.NewEngineError(o.desc.Name, errors.KindUnknown, "empty completion", nil)
	}

	elements := paragraphElements(resp.Choices[0].Message.Content, in.PageNumber, o.desc.Name)
	confidence := 0.0
	if len(elements) > 0 {
		confidence = openAIVisionConfidence
	}

	o.logger.Debug("Vision transcription complete",
		"page", in.PageNumber,
		"model", resp.Model,
		"paragraphs", len(elements),
		"promptTokens", resp.Usage.PromptTokens,
		"completionTokens", resp.Usage.CompletionTokens)

	return &Recognition{
		Elements:   elements,
		Confidence: confidence,
		RawMetadata: map[string]interface{}{
			"model":             resp.Model,
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
		},
	}, nil
}

// paragraphElements splits a transcription on blank lines into full-width bands.
func paragraphElements(content string, pageNumber int, engineName string) []model.ExtractedElement {
	var paragraphs []string
	var lineCounts []int
	total := 0
	for _, block := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		n := strings.Count(block, "\n") + 1
		paragraphs = append(paragraphs, block)
		lineCounts = append(lineCounts, n)
		total += n
	}
	if total == 0 {
		return nil
	}

	elements := make([]model.ExtractedElement, 0, len(paragraphs))
	y := 0.0
	for i, p := range paragraphs {
		h := float64(lineCounts[i]) / float64(total)
		elements = append(elements, model.ExtractedElement{
			Text:        p,
			ElementType: model.ElementText,
			PageNumber:  pageNumber,
			Confidence:  openAIVisionConfidence,
			BBox:        model.BoundingBox{X: 0, Y: y, Width: 1, Height: h}.Clamp(),
			Metadata: map[string]interface{}{
				"engine":         engineName,
				"bbox_estimated": true,
			},
		})
		y += h
	}
	return elements
}

func (o *OpenAIVisionEngine) mapError(ctx context.Context, err error) error {
	var apiErr *openai.Error
	if stderrors.As(err, &apiErr) {
		msg := fmt.Sprintf("status %d: %s", apiErr.StatusCode, apiErr.Message)
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.NewEngineError(o.desc.Name, errors.KindAuth, msg, err)
		case http.StatusTooManyRequests:
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			o.limiter.Record429(retryAfter)
			ee := errors.NewEngineError(o.desc.Name, errors.KindRateLimit, msg, err)
			ee.RetryAfter = retryAfter
			return ee
		case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
			return errors.NewEngineError(o.desc.Name, errors.KindUnsupportedInput, msg, err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return errors.NewEngineError(o.desc.Name, errors.KindTimeout, msg, err)
		default:
			return errors.NewEngineError(o.desc.Name, errors.KindUnknown, msg, err)
		}
	}
	if ctx.Err() != nil || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewEngineError(o.desc.Name, errors.KindTimeout, "request cancelled", err)
	}
	return errors.NewEngineError(o.desc.Name, errors.KindUnknown, "request failed", err)
}
