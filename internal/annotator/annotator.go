// Package annotator enriches new incidents with a generated title,
// description, fix hint and severity.
package annotator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"uplight/internal/config"
	"uplight/internal/storage"

	"github.com/go-resty/resty/v2"
)

// ErrDisabled is returned when annotation is switched off.
var ErrDisabled = errors.New("annotator disabled")

// Request describes the incident to annotate.
type Request struct {
	Cause        storage.Cause
	MonitorName  string
	MonitorURL   string
	StatusCode   *int
	ErrorMessage string
	ResponseTime int64
	Location     string
}

// Annotation is the generated incident text.
type Annotation struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Hint        string           `json:"hint"`
	Severity    storage.Severity `json:"severity"`
}

// Validate rejects empty fields and unknown severities.
func (a *Annotation) Validate() error {
	if strings.TrimSpace(a.Title) == "" || strings.TrimSpace(a.Description) == "" || strings.TrimSpace(a.Hint) == "" {
		return fmt.Errorf("annotation is missing title, description or hint")
	}
	switch a.Severity {
	case storage.SeverityLow, storage.SeverityMedium, storage.SeverityHigh, storage.SeverityCritical:
		return nil
	default:
		return fmt.Errorf("invalid severity: %q", a.Severity)
	}
}

// Annotator produces an annotation for an incident.
type Annotator interface {
	Annotate(ctx context.Context, req Request) (*Annotation, error)
}

// New returns the OpenAI-compatible client when enabled, otherwise an
// annotator that always fails with ErrDisabled.
func New(cfg config.AnnotatorConfig) Annotator {
	if !cfg.Enabled {
		return Disabled{}
	}
	return NewOpenAI(cfg)
}

// Disabled is the annotator used when annotation is off.
type Disabled struct{}

func (Disabled) Annotate(context.Context, Request) (*Annotation, error) {
	return nil, ErrDisabled
}

var causeSolutions = map[storage.Cause]string{
	storage.CauseHTTP5xx:           "Check server logs, verify backend services are running, review recent deployments",
	storage.CauseHTTP4xx:           "Verify endpoint exists, check authentication/authorization, review request parameters",
	storage.CauseHTTP3xx:           "Review redirect chain, check for redirect loops, verify final destination",
	storage.CauseTimeout:           "Check server load, review slow queries, verify network connectivity, increase timeout threshold",
	storage.CauseConnectionRefused: "Verify service is running on correct port, check firewall rules, confirm host is reachable",
	storage.CauseDNSFailure:        "Verify DNS records, check nameserver configuration, confirm domain hasn't expired",
	storage.CauseSSLError:          "Check certificate expiration, verify certificate chain, ensure correct hostname in cert",
	storage.CauseContentMismatch:   "Review expected content pattern, check if page content changed, verify correct page loads",
	storage.CauseTCPFailure:        "Verify service is listening on port, check network path, review firewall rules",
	storage.CauseNetworkError:      "Check network connectivity, verify no ISP issues, review routing configuration",
	storage.CauseHeartbeatMissed:   "Check that the scheduled job still runs, review its logs, verify it can reach the ping URL",
}

const systemPrompt = `You are an uptime monitoring assistant. Reply with a single JSON object with the keys "title", "description", "hint" and "severity". Severity must be one of "low", "medium", "high" or "critical".`

// BuildPrompt renders the incident details and the troubleshooting steps
// for its cause.
func BuildPrompt(req Request) string {
	details := []string{
		"Cause: " + strings.ReplaceAll(string(req.Cause), "_", " "),
		"Monitor: " + req.MonitorName,
	}
	if req.MonitorURL != "" {
		details = append(details, "URL: "+req.MonitorURL)
	}
	if req.StatusCode != nil && *req.StatusCode != 0 {
		details = append(details, fmt.Sprintf("HTTP status: %d", *req.StatusCode))
	}
	if req.ErrorMessage != "" {
		details = append(details, "Error: "+req.ErrorMessage)
	}
	if req.ResponseTime > 0 {
		details = append(details, fmt.Sprintf("Response time: %dms", req.ResponseTime))
	}
	if req.Location != "" {
		details = append(details, "Region: "+req.Location)
	}

	var b strings.Builder
	b.WriteString("Analyze this incident and help the user understand and fix it.\n\nINCIDENT:\n")
	b.WriteString(strings.Join(details, "\n"))
	if solutions, ok := causeSolutions[req.Cause]; ok {
		b.WriteString("\n\nPOSSIBLE SOLUTIONS FOR THIS CAUSE:\n")
		b.WriteString(solutions)
	}
	b.WriteString("\n\nGenerate a concise title, clear description, and a specific actionable hint. The hint should be the most likely solution based on the error details provided.")
	return b.String()
}

// OpenAI talks to an OpenAI-compatible chat completions API.
type OpenAI struct {
	client *resty.Client
	model  string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewOpenAI(cfg config.AnnotatorConfig) *OpenAI {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &OpenAI{client: client, model: cfg.Model}
}

// Annotate asks the model for an annotation and validates its reply.
func (o *OpenAI) Annotate(ctx context.Context, req Request) (*Annotation, error) {
	var out chatResponse
	var failure apiError

	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: o.model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: BuildPrompt(req)},
			},
			ResponseFormat: map[string]string{"type": "json_object"},
		}).
		SetResult(&out).
		SetError(&failure).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("annotation request failed: %w", err)
	}
	if resp.IsError() {
		if failure.Error.Message != "" {
			return nil, fmt.Errorf("annotation request returned %d: %s", resp.StatusCode(), failure.Error.Message)
		}
		return nil, fmt.Errorf("annotation request returned %d", resp.StatusCode())
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("annotation response has no choices")
	}

	var annotation Annotation
	if err := json.Unmarshal([]byte(out.Choices[0].Message.Content), &annotation); err != nil {
		return nil, fmt.Errorf("failed to parse annotation: %w", err)
	}
	annotation.Severity = storage.Severity(strings.ToLower(string(annotation.Severity)))
	if err := annotation.Validate(); err != nil {
		return nil, err
	}
	return &annotation, nil
}
