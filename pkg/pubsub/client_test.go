package pubsub

import (
	"context"
	"testing"

	"github.com/oneman/oneman-backend/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicResourceName(t *testing.T) {
	c := &Client{projectID: "oneman-dev"}

	assert.Equal(t, "projects/oneman-dev/topics/ledger", c.topicResourceName("ledger"))
	assert.Equal(t, "projects/other/topics/x", c.topicResourceName("projects/other/topics/x"))
	assert.Empty(t, c.topicResourceName("  "))

	var nilClient *Client
	assert.Empty(t, nilClient.topicResourceName("ledger"))
}

func TestTopicNamesDeduplicates(t *testing.T) {
	names := topicNames(config.PubSubConfig{GroupEventsTopic: "events", LedgerTopic: " events "})
	assert.Equal(t, []string{"events"}, names)

	assert.Empty(t, topicNames(config.PubSubConfig{}))
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("ledger"))
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}
