package payment

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SandboxDeclineLastFour always declines, whatever the decline rate
const SandboxDeclineLastFour = "0002"

// SandboxConfig holds configuration for the sandbox processor
type SandboxConfig struct {
	// DeclineRate is the probability of a decline (0.0 to 1.0)
	DeclineRate float64

	// Delay is the simulated authorization latency
	Delay time.Duration

	// Seed makes decisions reproducible; zero seeds from the clock
	Seed int64

	// DeclineReasons are picked at random on a decline
	DeclineReasons []string
}

// DefaultSandboxConfig returns default configuration
func DefaultSandboxConfig() *SandboxConfig {
	return &SandboxConfig{
		DeclineRate: 0.01,
		Delay:       100 * time.Millisecond,
		DeclineReasons: []string{
			"insufficient_funds",
			"card_declined",
			"expired_card",
			"do_not_honor",
			"fraud_suspected",
		},
	}
}

// SandboxProcessor approves or declines at random without calling anyone
type SandboxProcessor struct {
	config *SandboxConfig
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewSandboxProcessor creates a new sandbox processor
func NewSandboxProcessor(config *SandboxConfig) *SandboxProcessor {
	if config == nil {
		config = DefaultSandboxConfig()
	}
	if config.DeclineRate < 0 {
		config.DeclineRate = 0
	}
	if config.DeclineRate > 1 {
		config.DeclineRate = 1
	}
	if len(config.DeclineReasons) == 0 {
		config.DeclineReasons = []string{"card_declined"}
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SandboxProcessor{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Name returns the processor name
func (p *SandboxProcessor) Name() string {
	return "sandbox"
}

// Authorize simulates an authorization
func (p *SandboxProcessor) Authorize(ctx context.Context, req *AuthorizationRequest) (*Authorization, error) {
	if req == nil {
		return nil, fmt.Errorf("authorization request is required")
	}

	if p.config.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.config.Delay):
		}
	}

	ref := "sbx_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]

	p.mu.Lock()
	roll := p.rng.Float64()
	reason := p.config.DeclineReasons[p.rng.Intn(len(p.config.DeclineReasons))]
	code := p.rng.Intn(1000000)
	p.mu.Unlock()

	if req.LastFour == SandboxDeclineLastFour || roll < p.config.DeclineRate {
		return &Authorization{
			Approved:      false,
			ProcessorRef:  ref,
			DeclineReason: reason,
			DeclineCode:   reason,
		}, nil
	}

	return &Authorization{
		Approved:          true,
		AuthorizationCode: fmt.Sprintf("%06d", code),
		ProcessorRef:      ref,
	}, nil
}

var _ CardProcessor = (*SandboxProcessor)(nil)
