package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentflow/internal/logging"
	"github.com/fyrsmithlabs/agentflow/internal/secrets"
)

// Scrubbing wraps p so every prompt passes through s before it is sent.
func Scrubbing(p Provider, s secrets.Scrubber, logger *logging.Logger) Provider {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &scrubbingProvider{next: p, scrubber: s, logger: logger.Named("llm")}
}

type scrubbingProvider struct {
	next     Provider
	scrubber secrets.Scrubber
	logger   *logging.Logger
}

func (s *scrubbingProvider) Name() string { return s.next.Name() }

func (s *scrubbingProvider) Generate(ctx context.Context, prompt string, cfg *GenerationConfig) (string, error) {
	r := s.scrubber.Scrub(prompt)
	if r.HasFindings() {
		s.logger.Warn(ctx, "redacted secrets from prompt",
			zap.String("provider", s.next.Name()),
			zap.Int("findings", r.TotalFindings),
			zap.Strings("rules", r.RuleIDs()))
	}
	return s.next.Generate(ctx, r.Scrubbed, cfg)
}
