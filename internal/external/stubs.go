package external

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"tippslottet/internal/types"
)

// StubEmailProvider is a no-op EmailProvider used in local development and
// tests when no RESEND_API_KEY is configured. It records every send so tests
// can assert on outbound traffic.
type StubEmailProvider struct {
	logger *slog.Logger

	mu    sync.Mutex
	sends []types.SendInput

	// FailWith, when non-nil, is returned by every Send call.
	FailWith error
}

// NewStubEmailProvider creates a stub provider logging each send.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEmailProvider{logger: logger}
}

// Send records the input and returns a synthetic message id.
func (s *StubEmailProvider) Send(_ context.Context, input types.SendInput) (string, error) {
	s.mu.Lock()
	s.sends = append(s.sends, input)
	s.mu.Unlock()

	if s.FailWith != nil {
		return "", s.FailWith
	}

	s.logger.Info("stub email provider: send suppressed",
		"recipients", len(input.To),
		"subject", input.Subject,
	)
	return "stub-" + uuid.New().String(), nil
}

// Sends returns a copy of all recorded send inputs.
func (s *StubEmailProvider) Sends() []types.SendInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.SendInput, len(s.sends))
	copy(out, s.sends)
	return out
}

// Compile-time assertion that StubEmailProvider satisfies types.EmailProvider.
var _ types.EmailProvider = (*StubEmailProvider)(nil)
