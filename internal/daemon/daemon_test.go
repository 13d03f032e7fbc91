package daemon

import (
	"context"
	"os"
	"testing"

	"work-pipeline/internal/config"
)

func TestAdvertiseAddr(t *testing.T) {
	hostname, err := os.Hostname()
	if err != nil {
		t.Skipf("no hostname: %v", err)
	}

	cases := map[string]string{
		"10.0.0.4:50052": "10.0.0.4:50052",
		":50052":         hostname + ":50052",
		"0.0.0.0:9000":   hostname + ":9000",
	}
	for in, want := range cases {
		got, err := AdvertiseAddr(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if got != want {
			t.Fatalf("%s: want %s got %s", in, want, got)
		}
	}

	if _, err := AdvertiseAddr("no-port"); err == nil {
		t.Fatalf("expected an error for an address without a port")
	}
}

func TestJoinWithoutEtcdIsStandalone(t *testing.T) {
	node, err := Join(context.Background(), &config.Config{}, "producer", "n1", nil)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if node.Client != nil {
		t.Fatalf("expected no etcd client")
	}
	node.Leave()
}
