package seek_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssdk "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"s3sink/kcql"
	"s3sink/manager"
	"s3sink/naming"
	"s3sink/s3store"
	"s3sink/seek"
)

// fakeListBucket serves a fixed ListObjectsV2 result over a set of known
// keys, enough to exercise the seeker's offset recovery without a live
// AWS account.
type fakeListBucket struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeListBucket) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var contents strings.Builder
		for _, key := range f.keys {
			fmt.Fprintf(&contents, "<Contents><Key>%s</Key></Contents>", key)
		}
		fmt.Fprintf(w, `<?xml version="1.0"?><ListBucketResult>%s</ListBucketResult>`, contents.String())
	}
}

func newTestClient(t *testing.T, bucket *fakeListBucket) *s3store.Client {
	server := httptest.NewServer(bucket.handler())
	t.Cleanup(server.Close)

	cfg, err := awssdk.LoadDefaultConfig(context.Background(),
		awssdk.WithRegion("us-east-1"),
		awssdk.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("fake", "fake", "")),
	)
	require.NoError(t, err)

	api := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(server.URL)
		o.UsePathStyle = true
	})
	return s3store.New(api, "test-bucket")
}

func hierarchicalStatement() kcql.Statement {
	return kcql.Statement{
		Bucket: "test-bucket",
		Prefix: "orders",
		Topic:  "orders-topic",
		Format: kcql.FormatJSON,
	}
}

func TestSeekerHighestCommittedOffsetHierarchical(t *testing.T) {
	bucket := &fakeListBucket{keys: []string{
		"orders/orders-topic/0/10.json",
		"orders/orders-topic/0/25.json",
		"orders/orders-topic/0/5.json",
		"orders/orders-topic/1/999.json",
	}}
	stmt := hierarchicalStatement()
	s := seek.New(newTestClient(t, bucket), stmt, naming.StrategyFor(stmt))

	offset, found, err := s.HighestCommittedOffset(context.Background(), "orders-topic", 0)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(25), offset)
}

func TestSeekerHighestCommittedOffsetNoneFoundYet(t *testing.T) {
	bucket := &fakeListBucket{}
	stmt := hierarchicalStatement()
	s := seek.New(newTestClient(t, bucket), stmt, naming.StrategyFor(stmt))

	_, found, err := s.HighestCommittedOffset(context.Background(), "orders-topic", 0)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestSeekerHighestCommittedOffsetIgnoresOtherPartitions(t *testing.T) {
	bucket := &fakeListBucket{keys: []string{
		"orders/orders-topic/1/500.json",
		"orders/orders-topic/1/750.json",
	}}
	stmt := hierarchicalStatement()
	s := seek.New(newTestClient(t, bucket), stmt, naming.StrategyFor(stmt))

	_, found, err := s.HighestCommittedOffset(context.Background(), "orders-topic", 0)
	assert.NoError(t, err)
	assert.False(t, found)
}

// fakeRequester records every Seek call made by the seeker's Open.
type fakeRequester struct {
	seeks map[string]int64
}

func (f *fakeRequester) Seek(topic string, kafkaPartition int, offset int64) {
	if f.seeks == nil {
		f.seeks = map[string]int64{}
	}
	f.seeks[fmt.Sprintf("%s[%d]", topic, kafkaPartition)] = offset
}

func TestSeekerOpenRequestsSeekPastHighestOffset(t *testing.T) {
	bucket := &fakeListBucket{keys: []string{
		"orders/orders-topic/0/25.json",
	}}
	stmt := hierarchicalStatement()
	s := seek.New(newTestClient(t, bucket), stmt, naming.StrategyFor(stmt))

	req := &fakeRequester{}
	err := s.Open(context.Background(), []manager.TopicPartition{{Topic: "orders-topic", Partition: 0}}, req)
	assert.NoError(t, err)
	assert.Equal(t, int64(26), req.seeks["orders-topic[0]"])
}

func TestSeekerOpenNoSeekWhenNothingCommitted(t *testing.T) {
	bucket := &fakeListBucket{}
	stmt := hierarchicalStatement()
	s := seek.New(newTestClient(t, bucket), stmt, naming.StrategyFor(stmt))

	req := &fakeRequester{}
	err := s.Open(context.Background(), []manager.TopicPartition{{Topic: "orders-topic", Partition: 0}}, req)
	assert.NoError(t, err)
	assert.Empty(t, req.seeks)
}

func TestSeekerOpenIsIdempotentAcrossRepeatedCalls(t *testing.T) {
	bucket := &fakeListBucket{keys: []string{
		"orders/orders-topic/0/25.json",
	}}
	stmt := hierarchicalStatement()
	s := seek.New(newTestClient(t, bucket), stmt, naming.StrategyFor(stmt))

	req := &fakeRequester{}
	partitions := []manager.TopicPartition{{Topic: "orders-topic", Partition: 0}}
	require.NoError(t, s.Open(context.Background(), partitions, req))
	require.NoError(t, s.Open(context.Background(), partitions, req))
	assert.Equal(t, int64(26), req.seeks["orders-topic[0]"])
}
