package mq

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsmm-world/userapi/config"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newFakePubSub(t *testing.T) (*PubSubClient, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := NewPubSubClient(context.Background(), config.PubSubConfig{ProjectID: "userapi-test"}, option.WithGRPCConn(conn))
	require.NoError(t, err)
	return client, srv
}

func TestPubSubClient_ReusesTopic(t *testing.T) {
	client, srv := newFakePubSub(t)
	ctx := context.Background()

	for _, kind := range []string{"AUTH_FAILURE", "INVALID_TOKEN", "RATE_LIMIT"} {
		id, err := client.Publish(ctx, "security-events", []byte(`{"type":"`+kind+`"}`), map[string]string{"type": kind})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}

	client.mu.Lock()
	assert.Len(t, client.topics, 1)
	cached := client.topics["security-events"]
	client.mu.Unlock()
	require.NotNil(t, cached)

	again, err := client.topic(ctx, "security-events")
	require.NoError(t, err)
	assert.Same(t, cached, again)

	msgs := srv.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "RATE_LIMIT", msgs[2].Attributes["type"])

	require.NoError(t, client.Close())
	assert.Empty(t, client.topics)
}

func TestPubSubClient_UsesExistingTopic(t *testing.T) {
	client, srv := newFakePubSub(t)
	ctx := context.Background()

	existing, err := client.client.CreateTopic(ctx, "security-events")
	require.NoError(t, err)
	existing.Stop()

	_, err = client.Publish(ctx, "security-events", []byte(`{}`), nil)
	require.NoError(t, err)
	assert.Len(t, srv.Messages(), 1)
	require.NoError(t, client.Close())
}

func TestPubSubClient_RequiresChannel(t *testing.T) {
	client, _ := newFakePubSub(t)
	defer client.Close()

	_, err := client.Publish(context.Background(), " ", nil, nil)
	assert.Error(t, err)
	assert.Error(t, client.Subscribe(context.Background(), "", nil))
}
