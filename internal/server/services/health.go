package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/server/gateway"
)

type Health struct {
	Network      string
	CurrentBlock int64
	ChainOK      bool
	ChainError   string
	Queued       int
	CheckedAt    time.Time
}

// HealthService reports whether the chain is reachable and how much work is
// waiting for it.
type HealthService struct {
	gateway   gateway.Gateway
	submitter *Submitter
	timeout   time.Duration
}

func NewHealthService(g gateway.Gateway, s *Submitter, timeout time.Duration) *HealthService {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthService{gateway: g, submitter: s, timeout: timeout}
}

func (h *HealthService) Check(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	res := Health{Queued: h.submitter.Queued(), CheckedAt: time.Now().UTC()}
	st, err := h.gateway.ChainStatus(ctx)
	if err != nil {
		res.ChainError = err.Error()
		return res
	}
	res.ChainOK = true
	res.Network = st.Network
	res.CurrentBlock = st.CurrentBlock
	return res
}
