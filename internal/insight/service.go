package insight

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	apperrors "superstore-dashboard/internal/errors"
	"superstore-dashboard/internal/models"
	"superstore-dashboard/internal/observability"
)

// RetryMessage is shown when neither the model nor the fallback produced text.
const RetryMessage = "There was an error generating the insight. Please try again."

// LoadingMessage is displayed while an insight is being generated.
const LoadingMessage = "Generating insight..."

type Service struct {
	generator Generator
	prompts   *Prompts
	timeout   time.Duration
	markdown  goldmark.Markdown
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds an insight service. generator may be nil, in which case
// every insight comes from the fallback sentences.
func NewService(generator Generator, prompts *Prompts, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		generator: generator,
		prompts:   prompts,
		timeout:   timeout,
		markdown:  goldmark.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// Generate answers req. The only error is a validation error for an unknown
// insight type; generation failures degrade to the fallback sentence and,
// past that, to RetryMessage.
func (s *Service) Generate(ctx context.Context, req models.InsightRequest) (models.Insight, error) {
	if !req.Kind.Valid() {
		return models.Insight{}, apperrors.Validation(fmt.Sprintf("unknown insight type %q", req.Kind))
	}

	ctx, span := observability.StartSpan(ctx, "insight.generate")
	defer span.End(s.logger)
	span.SetTag("insight.type", string(req.Kind))

	text, source := s.fromModel(ctx, req, span)
	if text == "" {
		text, source = s.fromFallback(req, span)
	}

	return models.Insight{
		ID:          uuid.NewString(),
		Kind:        req.Kind,
		Text:        text,
		HTML:        s.render(text),
		Source:      source,
		GeneratedAt: s.now().UTC(),
	}, nil
}

func (s *Service) fromModel(ctx context.Context, req models.InsightRequest, span *observability.Span) (string, models.InsightSource) {
	if s.generator == nil || s.prompts == nil {
		return "", ""
	}

	prompt, err := s.prompts.Prompt(req)
	if err != nil {
		s.logger.Warn("failed to build insight prompt", "type", req.Kind, "error", err)
		return "", ""
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := s.generator.Generate(ctx, prompt)
	span.SetTag("insight.generator", s.generator.Name())
	if err != nil {
		s.logger.Warn("insight model unavailable, using fallback",
			"generator", s.generator.Name(),
			"type", req.Kind,
			"duration", time.Since(start),
			"error", err,
		)
		return "", ""
	}

	return cleanMarkdown(text), models.InsightFromModel
}

func (s *Service) fromFallback(req models.InsightRequest, span *observability.Span) (string, models.InsightSource) {
	if s.prompts == nil {
		span.SetError(fmt.Errorf("no prompts configured"))
		return RetryMessage, models.InsightFromTemplate
	}

	text, err := s.prompts.Fallback(req)
	if err != nil || text == "" {
		span.SetError(err)
		s.logger.Error("fallback insight failed", "type", req.Kind, "error", err)
		return RetryMessage, models.InsightFromTemplate
	}
	return text, models.InsightFromTemplate
}

// render converts Markdown to HTML. Raw HTML in the source is escaped.
func (s *Service) render(text string) string {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(text), &buf); err != nil {
		s.logger.Warn("markdown conversion failed", "error", err)
		return "<p>" + html.EscapeString(text) + "</p>"
	}
	return buf.String()
}

// cleanMarkdown drops an outer code fence some models wrap answers in.
func cleanMarkdown(input string) string {
	cleaned := strings.TrimSpace(input)
	if strings.HasPrefix(cleaned, "```") && strings.HasSuffix(cleaned, "```") && len(cleaned) >= 6 {
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimPrefix(cleaned, "markdown")
		cleaned = strings.TrimSpace(cleaned)
	}
	return cleaned
}
