package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragdocs/internal/config"
	"ragdocs/internal/extract"
	"ragdocs/internal/queue"
	"ragdocs/internal/testutils"
	"ragdocs/internal/worker"
)

func TestItemEvents_NSQ(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t, testutils.NSQ)
	s.Setup()
	defer s.Teardown()

	ctx := context.Background()
	events := make(chan worker.ItemEvent, 4)

	consumer, err := nsq.NewConsumer(config.TopicIngestResult, "test-ch-result", nsq.NewConfig())
	require.NoError(t, err)
	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		var ev worker.ItemEvent
		if err := json.Unmarshal(m.Body, &ev); err != nil {
			return err
		}
		events <- ev
		return nil
	}))
	require.NoError(t, consumer.ConnectToNSQD(s.NSQAddr))
	defer consumer.Stop()

	q := newQueue(t)
	_, err = q.Enqueue(ctx, []string{"https://ex.com/ok", "https://ex.com/bad"})
	require.NoError(t, err)

	ex := NewFuncExtractor(func(ctx context.Context, url string) (*extract.Content, error) {
		if url == "https://ex.com/bad" {
			return nil, extract.FetchError(url, errors.New("connection refused"))
		}
		return &extract.Content{URL: url, Title: "OK", Text: twoSections}, nil
	})
	w := newWorker(t, q, ex, okEmbedder(), NewFakeIndex(), worker.Config{}, worker.WithPublisher(s.NSQ))
	require.True(t, w.Drain(ctx))

	got := make(map[string]worker.ItemEvent)
	for len(got) < 2 {
		select {
		case ev := <-events:
			got[ev.URL] = ev
		case <-time.After(10 * time.Second):
			t.Fatalf("timeout waiting for item events, got %d", len(got))
		}
	}

	assert.Equal(t, queue.StatusCompleted, got["https://ex.com/ok"].Status)
	assert.Equal(t, 2, got["https://ex.com/ok"].Chunks)
	assert.NotEmpty(t, got["https://ex.com/ok"].CorrelationID)
	assert.Equal(t, queue.StatusFailed, got["https://ex.com/bad"].Status)
	assert.Contains(t, got["https://ex.com/bad"].Error, "connection refused")
}
