package manager_test

import (
	"context"
	"fmt"
	"io"
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

	"s3sink/format"
	"s3sink/kcql"
	"s3sink/manager"
	"s3sink/naming"
	"s3sink/record"
	"s3sink/s3store"
	"s3sink/stage"
)

// fakeBucket is a minimal S3 HTTP stand-in, shared by manager and seek
// tests, that records PutObject bodies by key and answers ListObjectsV2.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool // when true, every PutObject returns a transient 500
}

func newFakeBucket() *fakeBucket { return &fakeBucket{objects: map[string][]byte{}} }

func (f *fakeBucket) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut:
			f.mu.Lock()
			fail := f.fail
			f.mu.Unlock()
			if fail {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `<?xml version="1.0"?><Error><Code>InternalError</Code><Message>boom</Message></Error>`)
				return
			}
			body, _ := io.ReadAll(r.Body)
			key := strings.TrimPrefix(r.URL.Path, "/test-bucket/")
			f.mu.Lock()
			f.objects[key] = body
			f.mu.Unlock()
			w.Header().Set("ETag", `"fake"`)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
			f.mu.Lock()
			defer f.mu.Unlock()
			var contents strings.Builder
			for key := range f.objects {
				fmt.Fprintf(&contents, "<Contents><Key>%s</Key></Contents>", key)
			}
			fmt.Fprintf(w, `<?xml version="1.0"?><ListBucketResult>%s</ListBucketResult>`, contents.String())
		default:
			w.WriteHeader(http.StatusOK)
		}
	}
}

func newFakeClient(t *testing.T, bucket *fakeBucket) *s3store.Client {
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

func countPtr(n int64) *int64 { return &n }

func jsonOpener() format.Opener {
	opener, _ := format.OpenerFor(kcql.FormatJSON)
	return opener
}

func valueRecord(topic string, kafkaPartition int, offset int64, id int64) record.Record {
	return record.Record{
		Topic:          topic,
		KafkaPartition: kafkaPartition,
		Offset:         offset,
		Value:          record.Struct(nil, map[string]record.SinkData{"id": record.Long(id)}),
	}
}

func newTestManager(t *testing.T, bucket *fakeBucket, maxCount int64, onCommit manager.Committer) *manager.Manager {
	stmt := kcql.Statement{
		Bucket: "test-bucket", Prefix: "orders", Topic: "orders-topic", Format: kcql.FormatJSON,
		Commit: kcql.CommitPolicy{MaxCount: countPtr(maxCount)},
	}
	client := newFakeClient(t, bucket)
	store := stage.New(stage.BuildLocal, t.TempDir(), client)
	clock := func() int64 { return 0 }

	mgr, err := manager.New(stmt, jsonOpener(), naming.StrategyFor(stmt), store, clock, onCommit)
	require.NoError(t, err)
	return mgr
}

func newTestManagerWithInterval(t *testing.T, bucket *fakeBucket, maxIntervalMs int64, clock manager.Clock, onCommit manager.Committer) *manager.Manager {
	stmt := kcql.Statement{
		Bucket: "test-bucket", Prefix: "orders", Topic: "orders-topic", Format: kcql.FormatJSON,
		Commit: kcql.CommitPolicy{MaxIntervalMs: countPtr(maxIntervalMs)},
	}
	client := newFakeClient(t, bucket)
	store := stage.New(stage.BuildLocal, t.TempDir(), client)

	mgr, err := manager.New(stmt, jsonOpener(), naming.StrategyFor(stmt), store, clock, onCommit)
	require.NoError(t, err)
	return mgr
}

func TestManagerSweepsTimeBasedFlushOnEmptyPut(t *testing.T) {
	bucket := newFakeBucket()
	// Start the clock at a non-zero time: the commit policy treats an open
	// time of 0 as "file not opened yet".
	var now int64 = 1000
	var committedOffset int64 = -1
	mgr := newTestManagerWithInterval(t, bucket, 1000, func() int64 { return now }, func(topic string, kafkaPartition int, nextOffset int64) {
		committedOffset = nextOffset
	})

	ctx := context.Background()
	require.NoError(t, mgr.Put(ctx, []record.Record{valueRecord("orders-topic", 0, 1, 1)}))
	assert.Equal(t, 1, mgr.OpenFileCount())

	now = 2000
	// An empty batch still sweeps the open file once its time threshold
	// has elapsed, even though it received no new record this round.
	require.NoError(t, mgr.Put(ctx, nil))
	assert.Equal(t, 0, mgr.OpenFileCount())
	assert.Equal(t, int64(2), committedOffset)
}

func TestManagerPutFlushesOnCountAndCommitsOffset(t *testing.T) {
	bucket := newFakeBucket()
	var committedOffset int64 = -1
	mgr := newTestManager(t, bucket, 2, func(topic string, kafkaPartition int, nextOffset int64) {
		committedOffset = nextOffset
	})

	ctx := context.Background()
	err := mgr.Put(ctx, []record.Record{
		valueRecord("orders-topic", 0, 10, 1),
		valueRecord("orders-topic", 0, 11, 2),
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(12), committedOffset)
	assert.Equal(t, 0, mgr.OpenFileCount())
	assert.Len(t, bucket.objects, 1)
}

func TestManagerPutDedupsAlreadyCommittedOffsets(t *testing.T) {
	bucket := newFakeBucket()
	mgr := newTestManager(t, bucket, 10, nil)
	mgr.SetLastCommittedOffset("orders-topic", 0, 50)

	ctx := context.Background()
	err := mgr.Put(ctx, []record.Record{valueRecord("orders-topic", 0, 40, 1)})
	assert.NoError(t, err)
	assert.Equal(t, 0, mgr.OpenFileCount())
}

func TestManagerCloseAllFlushesRegardlessOfPolicy(t *testing.T) {
	bucket := newFakeBucket()
	mgr := newTestManager(t, bucket, 1000, nil)

	ctx := context.Background()
	require.NoError(t, mgr.Put(ctx, []record.Record{valueRecord("orders-topic", 0, 1, 1)}))
	assert.Equal(t, 1, mgr.OpenFileCount())

	err := mgr.CloseAll(ctx, []manager.TopicPartition{{Topic: "orders-topic", Partition: 0}})
	assert.NoError(t, err)
	assert.Equal(t, 0, mgr.OpenFileCount())
	assert.Len(t, bucket.objects, 1)
}

func TestManagerAbortAllDiscardsWithoutCommitting(t *testing.T) {
	bucket := newFakeBucket()
	mgr := newTestManager(t, bucket, 1000, nil)

	ctx := context.Background()
	require.NoError(t, mgr.Put(ctx, []record.Record{valueRecord("orders-topic", 0, 1, 1)}))
	mgr.AbortAll(ctx)

	assert.Equal(t, 0, mgr.OpenFileCount())
	assert.Empty(t, bucket.objects)
}

func TestManagerRetriedCommitDoesNotDuplicateRecords(t *testing.T) {
	bucket := newFakeBucket()
	bucket.fail = true
	var committedOffset int64 = -1
	mgr := newTestManager(t, bucket, 1, func(topic string, kafkaPartition int, nextOffset int64) {
		committedOffset = nextOffset
	})
	ctx := context.Background()
	redelivered := []record.Record{valueRecord("orders-topic", 0, 10, 1)}

	// The runtime redelivers the same record on every failed put until the
	// store accepts the commit (spec S6: two failing puts, then one that
	// succeeds, exactly one committed object).
	err := mgr.Put(ctx, redelivered)
	assert.Error(t, err)
	err = mgr.Put(ctx, redelivered)
	assert.Error(t, err)
	assert.Equal(t, 1, mgr.OpenFileCount())
	assert.Equal(t, int64(-1), committedOffset)

	bucket.fail = false
	err = mgr.Put(ctx, redelivered)
	assert.NoError(t, err)
	assert.Equal(t, int64(11), committedOffset)
	assert.Equal(t, 0, mgr.OpenFileCount())

	require.Len(t, bucket.objects, 1)
	var body []byte
	for _, b := range bucket.objects {
		body = b
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	assert.Len(t, lines, 1) // not re-appended on each redelivered retry
}
