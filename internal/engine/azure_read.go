/**
 * Azure Read engine - cloud OCR through the Computer Vision Read 3.2 REST API
 *
 * The Read API is asynchronous: the image is submitted, the service answers 202
 * with an Operation-Location, and the result is polled until it succeeds or fails.
 * HTTP status codes are classified into engine error kinds for the retry policy.
 */

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ArmanBehnam/clark/internal/errors"
	"github.com/ArmanBehnam/clark/internal/logging"
	"github.com/ArmanBehnam/clark/internal/model"
)

const (
	azureReadPath         = "/vision/v3.2/read/analyze"
	azureMaxInputBytes    = 50 * 1024 * 1024
	azureMaxDimension     = 10000
	azureDefaultPollEvery = 500 * time.Millisecond
)

// AzureReadConfig holds Azure Read configuration
type AzureReadConfig struct {
	Endpoint     string
	APIKey       string
	Priority     int
	RateLimit    int // requests per minute
	PollInterval time.Duration
	HTTPClient   *http.Client
}

// AzureReadEngine calls the Azure Computer Vision Read API.
type AzureReadEngine struct {
	desc         Descriptor
	endpoint     string
	apiKey       string
	pollInterval time.Duration
	httpClient   *http.Client
	limiter      *RateLimiter
	logger       *logging.Logger
}

// azureOperation is the polled Read result.
type azureOperation struct {
	Status        string `json:"status"` // notStarted, running, succeeded, failed
	AnalyzeResult struct {
		ReadResults []azureReadPage `json:"readResults"`
	} `json:"analyzeResult"`
}

type azureReadPage struct {
	Page   int         `json:"page"`
	Width  float64     `json:"width"`
	Height float64     `json:"height"`
	Unit   string      `json:"unit"`
	Lines  []azureLine `json:"lines"`
}

type azureLine struct {
	BoundingBox []float64   `json:"boundingBox"`
	Text        string      `json:"text"`
	Words       []azureWord `json:"words"`
}

type azureWord struct {
	BoundingBox []float64 `json:"boundingBox"`
	Text        string    `json:"text"`
	Confidence  float64   `json:"confidence"`
}

// NewAzureReadEngine creates a new Azure Read engine
func NewAzureReadEngine(cfg AzureReadConfig) (*AzureReadEngine, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("azure_read: endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("azure_read: api key is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = azureDefaultPollEvery
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}

	return &AzureReadEngine{
		desc: Descriptor{
			Name:     "azure_read",
			Priority: cfg.Priority,
			Capabilities: Capabilities{
				SupportsTables:  false,
				MaxInputBytes:   azureMaxInputBytes,
				MaxDimension:    azureMaxDimension,
				RequiresNetwork: true,
			},
			Cost: CostPaid,
		},
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:       cfg.APIKey,
		pollInterval: cfg.PollInterval,
		httpClient:   cfg.HTTPClient,
		limiter:      NewRateLimiter(cfg.RateLimit),
		logger:       logging.NewLogger("AzureRead"),
	}, nil
}

func (a *AzureReadEngine) Descriptor() Descriptor { return a.desc }

func (a *AzureReadEngine) Supports(in InputDescriptor) bool {
	return SupportsInput(a.desc.Capabilities, in)
}

// Recognize submits the image and waits for the Read operation to finish.
func (a *AzureReadEngine) Recognize(ctx context.Context, in Input, opts Options) (*Recognition, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, errors.NewEngineError(a.desc.Name, errors.KindTimeout, "rate limiter wait cancelled", err)
	}

	opURL, err := a.submit(ctx, in, opts)
	if err != nil {
		return nil, err
	}

	op, err := a.waitForResult(ctx, opURL)
	if err != nil {
		return nil, err
	}

	rec := a.toRecognition(op, in.PageNumber)
	a.logger.Debug("Read operation complete",
		"page", in.PageNumber,
		"lines", len(rec.Elements),
		"confidence", rec.Confidence)
	return rec, nil
}

func (a *AzureReadEngine) submit(ctx context.Context, in Input, opts Options) (string, error) {
	endpoint := a.endpoint + azureReadPath
	if lang := azureLanguage(opts.Language); lang != "" {
		endpoint += "?language=" + lang
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(in.Image))
	if err != nil {
		return "", errors.NewEngineError(a.desc.Name, errors.KindUnknown, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", a.transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", a.statusError(resp, body)
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", errors.NewEngineError(a.desc.Name, errors.KindUnknown, "missing Operation-Location header", nil)
	}
	return opURL, nil
}

// waitForResult polls the operation until completion or context cancellation
func (a *AzureReadEngine) waitForResult(ctx context.Context, opURL string) (*azureOperation, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		op, err := a.getOperation(ctx, opURL)
		if err != nil {
			return nil, err
		}

		switch op.Status {
		case "succeeded":
			return op, nil
		case "failed":
			return nil, errors.NewEngineError(a.desc.Name, errors.KindUnsupportedInput, "read operation failed", nil)
		}

		select {
		case <-ctx.Done():
			return nil, errors.NewEngineError(a.desc.Name, errors.KindTimeout, "read operation did not finish", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (a *AzureReadEngine) getOperation(ctx context.Context, opURL string) (*azureOperation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
	if err != nil {
		return nil, errors.NewEngineError(a.desc.Name, errors.KindUnknown, "failed to create status request", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, a.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewEngineError(a.desc.Name, errors.KindUnknown, "failed to read status response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, a.statusError(resp, body)
	}

	var op azureOperation
	if err := json.Unmarshal(body, &op); err != nil {
		return nil, errors.NewEngineError(a.desc.Name, errors.KindUnknown, "failed to parse status response", err)
	}
	return &op, nil
}

func (a *AzureReadEngine) toRecognition(op *azureOperation, pageNumber int) *Recognition {
	var elements []model.ExtractedElement
	for _, page := range op.AnalyzeResult.ReadResults {
		for _, line := range page.Lines {
			text := strings.TrimSpace(line.Text)
			if text == "" {
				continue
			}
			conf := 0.0
			for _, w := range line.Words {
				conf += w.Confidence
			}
			if len(line.Words) > 0 {
				conf /= float64(len(line.Words))
			}
			elements = append(elements, model.ExtractedElement{
				Text:        text,
				ElementType: model.ElementText,
				PageNumber:  pageNumber,
				Confidence:  model.ClampConfidence(conf),
				BBox:        polygonToBox(line.BoundingBox, page.Width, page.Height),
				Metadata: map[string]interface{}{
					"engine": a.desc.Name,
					"words":  len(line.Words),
				},
			})
		}
	}

	return &Recognition{
		Elements:   elements,
		Confidence: averageConfidence(elements),
		RawMetadata: map[string]interface{}{
			"pages": len(op.AnalyzeResult.ReadResults),
		},
	}
}

// polygonToBox converts an 8-value clockwise polygon to a normalized bounding box.
func polygonToBox(poly []float64, width, height float64) model.BoundingBox {
	if len(poly) < 8 || width <= 0 || height <= 0 {
		return model.BoundingBox{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := 0; i+1 < len(poly); i += 2 {
		minX = math.Min(minX, poly[i])
		maxX = math.Max(maxX, poly[i])
		minY = math.Min(minY, poly[i+1])
		maxY = math.Max(maxY, poly[i+1])
	}
	return model.BoundingBox{
		X:      minX / width,
		Y:      minY / height,
		Width:  (maxX - minX) / width,
		Height: (maxY - minY) / height,
	}.Clamp()
}

// statusError maps an HTTP failure to an engine error kind.
func (a *AzureReadEngine) statusError(resp *http.Response, body []byte) error {
	msg := fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.NewEngineError(a.desc.Name, errors.KindAuth, msg, nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		a.limiter.Record429(retryAfter)
		ee := errors.NewEngineError(a.desc.Name, errors.KindRateLimit, msg, nil)
		ee.RetryAfter = retryAfter
		return ee
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnsupportedMediaType ||
		resp.StatusCode == http.StatusRequestEntityTooLarge:
		return errors.NewEngineError(a.desc.Name, errors.KindUnsupportedInput, msg, nil)
	case resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout:
		return errors.NewEngineError(a.desc.Name, errors.KindTimeout, msg, nil)
	default:
		return errors.NewEngineError(a.desc.Name, errors.KindUnknown, msg, nil)
	}
}

func (a *AzureReadEngine) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.NewEngineError(a.desc.Name, errors.KindTimeout, "request cancelled", err)
	}
	return errors.NewEngineError(a.desc.Name, errors.KindUnknown, "request failed", err)
}

// azureLanguage maps Tesseract style language codes to Read API codes.
func azureLanguage(lang string) string {
	switch strings.SplitN(lang, "+", 2)[0] {
	case "", "eng":
		return "en"
	case "deu":
		return "de"
	case "fra":
		return "fr"
	case "spa":
		return "es"
	default:
		if len(lang) == 2 {
			return lang
		}
		return ""
	}
}

// parseRetryAfter accepts delta-seconds; HTTP dates are ignored.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
