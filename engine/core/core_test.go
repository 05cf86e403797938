package core

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("load: %w", NewResourceError(ResourceKindTexture, "asset/texture.png", ErrResourceNotFound))

	assert.True(t, errors.Is(err, ErrResourceNotFound))
	assert.False(t, errors.Is(err, ErrResourceDecode))

	var re *ResourceError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, ResourceKindTexture, re.Kind)
	assert.Contains(t, re.Error(), "asset/texture.png")
}

func TestResourceErrorWrapsCause(t *testing.T) {
	cause := fmt.Errorf("%w: bad header", ErrResourceDecode)
	err := NewResourceError(ResourceKindModel, "cube.obj", cause)

	assert.ErrorIs(t, err, ErrResourceDecode)
}

func TestIdentifierIsMonotonic(t *testing.T) {
	var id Identifier
	seen := make(map[uint64]struct{})
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				n := id.Next()
				mu.Lock()
				seen[n] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 800)
	_, ok := seen[InvalidID]
	assert.False(t, ok)
}

func TestMetricsAverage(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.016)
	}
	assert.InDelta(t, 16.0, m.FrameTime(), 0.0001)
}

func TestMetricsFPS(t *testing.T) {
	m := NewMetrics()
	// 15.625ms frames cross the one second mark on the 65th update.
	for i := 0; i < 65; i++ {
		m.Update(0.015625)
	}
	fps, _ := m.Frame()
	assert.Equal(t, float64(64), fps)
}

func TestClockStopped(t *testing.T) {
	c := NewClock()
	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	c.Update()
	assert.GreaterOrEqual(t, c.Elapsed(), 0.0)
	c.Stop()
	e := c.Elapsed()
	c.Update()
	assert.Equal(t, e, c.Elapsed())
}

func TestSetLogLevel(t *testing.T) {
	SetLogLevel(WarnLevel)
	defer SetLogLevel(DebugLevel)
	defer SetLogOutput(os.Stderr)

	var buf safeBuffer
	SetLogOutput(&buf)
	LogInfo("hidden")
	LogWarn("shown %d", 1)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 1")
}

type safeBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
