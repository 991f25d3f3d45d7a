package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeChecker struct {
	name    string
	healthy atomic.Int32
}

func (f *fakeChecker) Name() string                               { return f.name }
func (f *fakeChecker) IsHealthy() bool                            { return f.healthy.Load() == 1 }
func (f *fakeChecker) Start(ctx context.Context, _ time.Duration) { /* no-op */ }

func TestServiceHealthChecker_Transitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := zerolog.Nop()

	a := &fakeChecker{name: "a"}
	b := &fakeChecker{name: "b"}
	a.healthy.Store(1)
	b.healthy.Store(1)

	svc := NewServiceHealthChecker(logger, a, b)
	go svc.Start(ctx, 10*time.Millisecond)

	// Initially healthy
	waitTrue(t, func() bool { return svc.IsHealthy() })

	// Flip one to unhealthy
	b.healthy.Store(0)
	waitTrue(t, func() bool { return !svc.IsHealthy() })

	// Recover
	b.healthy.Store(1)
	waitTrue(t, func() bool { return svc.IsHealthy() })
}

func waitTrue(t *testing.T, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout")
}

type pinger struct{ err atomic.Value }

func (p *pinger) HealthPing(context.Context) error {
	if v := p.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func TestPingChecker_FollowsPinger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &pinger{}
	c := NewPingChecker("llm", p, zerolog.Nop(), time.Second)
	go c.Start(ctx, 10*time.Millisecond)
	waitTrue(t, c.IsHealthy)

	p.err.Store(errors.New("connection refused"))
	waitTrue(t, func() bool { return !c.IsHealthy() })
}

func TestServiceHealthChecker_OptionalDoesNotGate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &fakeChecker{name: "store"}
	store.healthy.Store(1)
	llm := &fakeChecker{name: "llm"}

	svc := NewServiceHealthChecker(zerolog.Nop(), store).WithOptional(llm)
	go svc.Start(ctx, 10*time.Millisecond)
	waitTrue(t, svc.IsHealthy)

	r := svc.Report()
	assert.True(t, r.Healthy)
	assert.Equal(t, map[string]bool{"store": true, "llm": false}, r.Components)
}
