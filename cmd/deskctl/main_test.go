package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestCheck(t *testing.T) {
	tmpDir, err := os.MkdirTemp("/tmp", "deskctl-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	socketPath := filepath.Join(tmpDir, "d.sock")

	hs := health.NewServer()
	hs.SetServingStatus("loja", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("filial", healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(listener) }()
	defer srv.GracefulStop()

	conn, err := grpc.NewClient("unix://"+socketPath, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()

	rows, err := check(context.Background(), healthpb.NewHealthClient(conn), []string{"", "loja", "filial", "nope"})
	if err != nil {
		t.Fatalf("check() error = %v", err)
	}
	want := []string{"SERVING", "SERVING", "NOT_SERVING", "UNKNOWN"}
	for i, r := range rows {
		if r.Status != want[i] {
			t.Errorf("%q = %s, want %s", r.Session, r.Status, want[i])
		}
	}
}
