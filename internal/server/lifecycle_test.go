package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingService struct {
	name    string
	log     *[]string
	mu      *sync.Mutex
	startCh chan struct{}
	err     error
}

func (r *recordingService) Start() error {
	r.mu.Lock()
	*r.log = append(*r.log, "start:"+r.name)
	r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	<-r.startCh
	return nil
}

func (r *recordingService) Stop() {
	r.mu.Lock()
	*r.log = append(*r.log, "stop:"+r.name)
	r.mu.Unlock()
	select {
	case <-r.startCh:
	default:
		close(r.startCh)
	}
}

func TestLifecycle_StopsInReverseOrder(t *testing.T) {
	var log []string
	var mu sync.Mutex
	l := NewLifecycle(zaptest.NewLogger(t))
	a := &recordingService{name: "a", log: &log, mu: &mu, startCh: make(chan struct{})}
	b := &recordingService{name: "b", log: &log, mu: &mu, startCh: make(chan struct{})}
	l.Add("a", a)
	l.Add("b", b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("lifecycle did not shut down")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, log, 4)
	assert.Equal(t, "stop:b", log[2], "last added stops first")
	assert.Equal(t, "stop:a", log[3])
}

func TestLifecycle_ServiceFailureTriggersShutdown(t *testing.T) {
	var log []string
	var mu sync.Mutex
	boom := errors.New("listen failed")
	l := NewLifecycle(zaptest.NewLogger(t))
	l.Add("healthy", &recordingService{name: "healthy", log: &log, mu: &mu, startCh: make(chan struct{})})
	l.Add("broken", &recordingService{name: "broken", log: &log, mu: &mu, startCh: make(chan struct{}), err: boom})

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("lifecycle did not shut down on service failure")
	}
}
