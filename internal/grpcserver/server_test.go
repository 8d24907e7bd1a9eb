package grpcserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"snapdiff/internal/storage"
)

func startServer(t *testing.T, store *storage.Store) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	NewHistoryServer(store, slog.New(slog.NewTextHandler(io.Discard, nil))).RegisterWithServer(srv)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	client, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func seededStore(t *testing.T) *storage.Store {
	t.Helper()
	st, err := storage.New(filepath.Join(t.TempDir(), "grpc.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	for _, rec := range []storage.VerdictRecord{
		{JobID: "1", Identity: "home", Verdict: "identical"},
		{JobID: "2", Identity: "home", Verdict: "different", DiffArea: 25, MaxColorDistance: 80},
		{JobID: "3", Identity: "login/01_form", Verdict: "identical", Exhausted: true},
	} {
		if err := st.RecordVerdict(rec); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	return st
}

func TestRecentOverBufconn(t *testing.T) {
	client := startServer(t, seededStore(t))

	items, err := client.Recent(context.Background(), "home", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 verdicts, got %d", len(items))
	}
	for _, it := range items {
		if it["identity"] != "home" {
			t.Fatalf("unexpected identity %v", it["identity"])
		}
	}
}

func TestFlakyOverBufconn(t *testing.T) {
	client := startServer(t, seededStore(t))

	items, err := client.Flaky(context.Background(), 10)
	if err != nil {
		t.Fatalf("flaky: %v", err)
	}
	if len(items) != 2 || items[0]["identity"] != "login/01_form" {
		t.Fatalf("unexpected flaky identities %v", items)
	}
}

func TestHealthService(t *testing.T) {
	client := startServer(t, seededStore(t))

	resp, err := healthpb.NewHealthClient(client.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected health status %v", resp.GetStatus())
	}
}

func TestRecentRejectsBadLimit(t *testing.T) {
	s := NewHistoryServer(seededStore(t), nil)
	req, _ := structpb.NewStruct(map[string]any{"limit": "ten"})
	_, err := s.Recent(context.Background(), req)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestMissingStoreIsUnavailable(t *testing.T) {
	s := NewHistoryServer(nil, nil)
	_, err := s.Recent(context.Background(), &structpb.Struct{})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
