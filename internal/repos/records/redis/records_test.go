package redis

import (
	"context"
	"os"
	"testing"

	"github.com/fastprodman/gamegateway/internal/repos/records/recordstest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Needs a live server: REDIS_ADDR=localhost:6379 go test ./...
func TestRecords_Contract(t *testing.T) {
	t.Parallel()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := NewClient(addr, os.Getenv("REDIS_PASSWORD"), 0)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Ping(t.Context()).Err())

	prefix := "recordstest:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		ctx := context.Background()

		iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	})

	recordstest.Run(t, New(client, prefix))
}
