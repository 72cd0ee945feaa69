// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	xglog "github.com/ManuGH/streamgrab/internal/log"
)

func testServerConfig() ServerConfig {
	cfg := DefaultServerConfig("127.0.0.1:0")
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

// startManager runs Start in the background and waits for the listener.
func startManager(t *testing.T, mgr Manager) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(ctx) }()
	require.Eventually(t, func() bool { return mgr.Addr() != nil }, 2*time.Second, 5*time.Millisecond)
	return cancel, errChan
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(testServerConfig(), Deps{Logger: xglog.WithComponent("test"), APIHandler: okHandler()})
	require.NoError(t, err)

	_, err = NewManager(testServerConfig(), Deps{Logger: zerolog.Nop(), APIHandler: okHandler()})
	require.ErrorIs(t, err, ErrMissingLogger)

	_, err = NewManager(testServerConfig(), Deps{Logger: xglog.WithComponent("test")})
	require.ErrorIs(t, err, ErrMissingAPIHandler)
}

func TestManager_StartServesAndStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr, err := NewManager(testServerConfig(), Deps{Logger: xglog.WithComponent("test"), APIHandler: okHandler()})
	require.NoError(t, err)
	cancel, errChan := startManager(t, mgr)
	defer cancel()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + mgr.Addr().String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	cancel()
	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func TestManager_ShutdownHooksRunLIFO(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr, err := NewManager(testServerConfig(), Deps{Logger: xglog.WithComponent("test"), APIHandler: okHandler()})
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	record := func(name string, err error) ShutdownHook {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return err
		}
	}
	mgr.RegisterShutdownHook("first", record("first", nil))
	mgr.RegisterShutdownHook("second", record("second", errors.New("flush failed")))
	mgr.RegisterShutdownHook("third", record("third", nil))

	cancel, errChan := startManager(t, mgr)
	cancel()

	err = <-errChan
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook second: flush failed")
	assert.Equal(t, []string{"third", "second", "first"}, order)

	// Second shutdown is a no-op.
	assert.NoError(t, mgr.Shutdown(context.Background()))
}

func TestManager_ShutdownBeforeStart(t *testing.T) {
	mgr, err := NewManager(testServerConfig(), Deps{Logger: xglog.WithComponent("test"), APIHandler: okHandler()})
	require.NoError(t, err)
	assert.ErrorIs(t, mgr.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestManager_StartTwice(t *testing.T) {
	mgr, err := NewManager(testServerConfig(), Deps{Logger: xglog.WithComponent("test"), APIHandler: okHandler()})
	require.NoError(t, err)
	cancel, errChan := startManager(t, mgr)

	assert.ErrorIs(t, mgr.Start(context.Background()), ErrManagerStarted)

	cancel()
	require.NoError(t, <-errChan)
}

func TestManager_ListenFailureRunsHooks(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testServerConfig()
	cfg.ListenAddr = ln.Addr().String()
	mgr, err := NewManager(cfg, Deps{Logger: xglog.WithComponent("test"), APIHandler: okHandler()})
	require.NoError(t, err)

	ran := false
	mgr.RegisterShutdownHook("cleanup", func(context.Context) error { ran = true; return nil })

	err = mgr.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
	assert.True(t, ran)
}

func TestManager_ShutdownEndsLongLivedRequests(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	entered := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		http.NewResponseController(w).Flush()
		close(entered)
		<-r.Context().Done()
	})
	mgr, err := NewManager(testServerConfig(), Deps{Logger: xglog.WithComponent("test"), APIHandler: handler})
	require.NoError(t, err)
	cancel, errChan := startManager(t, mgr)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + mgr.Addr().String() + "/events")
	require.NoError(t, err)
	<-entered

	start := time.Now()
	cancel()
	require.NoError(t, <-errChan)
	assert.Less(t, time.Since(start), time.Second)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
