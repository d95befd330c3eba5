package ipc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// socketPath returns a short socket path; t.TempDir names can exceed the
// sun_path limit.
func socketPath(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "ipc-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	return filepath.Join(dir, "control.sock")
}

func startServer(t *testing.T, handler Handler) string {
	t.Helper()

	path := socketPath(t)
	server := NewServer(path, handler)
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Stop(); err != nil {
			t.Errorf("server.Stop failed: %v", err)
		}
	})

	return path
}

func TestListSessions(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	path := startServer(t, func(ctx context.Context, req *Request) (*Response, error) {
		if req.Type != MessageTypeListSessions {
			t.Errorf("unexpected request type %s", req.Type)
		}
		return &Response{
			Status: StatusOK,
			Sessions: []SessionInfo{
				{ID: "aaa", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
				{ID: "bbb", User: "admin", Role: "admin", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
			},
		}, nil
	})

	sessions, err := NewClient(path).ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}

	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].Authenticated() {
		t.Error("first session should be anonymous")
	}
	if !sessions[1].Authenticated() || sessions[1].Role != "admin" {
		t.Errorf("unexpected second session: %+v", sessions[1])
	}
	if !sessions[1].ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("expiry not preserved: %v", sessions[1].ExpiresAt)
	}
}

func TestRevokeSession(t *testing.T) {
	var got string
	path := startServer(t, func(ctx context.Context, req *Request) (*Response, error) {
		got = req.SessionID
		return &Response{Status: StatusOK}, nil
	})

	if err := NewClient(path).RevokeSession(context.Background(), "abc123"); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if got != "abc123" {
		t.Errorf("server saw session id %q", got)
	}
}

func TestServerHandlerError(t *testing.T) {
	path := startServer(t, func(ctx context.Context, req *Request) (*Response, error) {
		return nil, errors.New("store unavailable")
	})

	_, err := NewClient(path).ListSessions(context.Background())
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
}

func TestUnknownRequestType(t *testing.T) {
	called := false
	path := startServer(t, func(ctx context.Context, req *Request) (*Response, error) {
		called = true
		return &Response{Status: StatusOK}, nil
	})

	resp, err := NewClient(path).Send(context.Background(), &Request{Type: "shutdown"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resp.Status != StatusError || resp.Error != "unknown request type" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if called {
		t.Error("handler must not see unknown requests")
	}
}

func TestClientConnectionFailure(t *testing.T) {
	_, err := NewClient("/nonexistent/path/control.sock").ListSessions(context.Background())
	if err == nil {
		t.Error("expected error when connecting to non-existent socket")
	}
}

func TestServerSocketPermissions(t *testing.T) {
	path := startServer(t, func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{Status: StatusOK}, nil
	})

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("failed to stat socket: %v", err)
	}

	if want := os.FileMode(0660) | os.ModeSocket; info.Mode() != want {
		t.Errorf("expected socket mode %v, got %v", want, info.Mode())
	}
}

func TestServerGracefulShutdown(t *testing.T) {
	path := socketPath(t)

	handler := func(ctx context.Context, req *Request) (*Response, error) {
		time.Sleep(200 * time.Millisecond)
		return &Response{Status: StatusOK}, nil
	}

	server := NewServer(path, handler)
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := NewClient(path).ListSessions(context.Background())
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)

	if err := server.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	if err := <-done; err != nil {
		t.Errorf("in-flight request should complete, got %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("socket file should be removed after stop")
	}

	// A second Stop is a no-op.
	if err := server.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestMultipleConcurrentRequests(t *testing.T) {
	path := startServer(t, func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{
			Status:   StatusOK,
			Sessions: []SessionInfo{{ID: "s-" + req.SessionID}},
		}, nil
	})

	const numRequests = 10
	var wg sync.WaitGroup
	errs := make(chan error, numRequests)

	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('A' + n))
			resp, err := NewClient(path).Send(context.Background(), &Request{Type: MessageTypeListSessions, SessionID: id})
			if err != nil {
				errs <- err
				return
			}
			if len(resp.Sessions) != 1 || resp.Sessions[0].ID != "s-"+id {
				errs <- errors.New("response mixed up between connections")
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("request failed: %v", err)
	}
}

func TestClientTimeout(t *testing.T) {
	path := startServer(t, func(ctx context.Context, req *Request) (*Response, error) {
		time.Sleep(2 * time.Second)
		return &Response{Status: StatusOK}, nil
	})

	client := NewClient(path)
	client.SetTimeout(500 * time.Millisecond)

	if _, err := client.ListSessions(context.Background()); err == nil {
		t.Error("expected timeout error")
	}
}
