package partition_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"s3sink/partition"
	"s3sink/record"
	"s3sink/sinkerr"
)

func sampleRecord() record.Record {
	value := record.Struct(nil, map[string]record.SinkData{
		"region": record.String("eu-west-1"),
		"order": record.Struct(nil, map[string]record.SinkData{
			"id": record.Long(42),
		}),
		"tag": record.Null(nil),
	})
	return record.Record{
		Topic:          "orders",
		KafkaPartition: 2,
		Value:          value,
		Key:            record.String("k1"),
		Headers:        []record.Header{{Key: "trace-id", Value: []byte("77")}},
	}
}

func TestExtractWholeValue(t *testing.T) {
	v, err := partition.Extract(sampleRecord(), partition.SourceValue, nil)
	assert.NoError(t, err)
	assert.Equal(t, record.KindStruct, v.Kind)
}

func TestExtractNestedPath(t *testing.T) {
	v, err := partition.Extract(sampleRecord(), partition.SourceValue, []string{"order", "id"})
	assert.NoError(t, err)
	assert.Equal(t, int64(42), v.AsInt64())
}

func TestExtractMissingFieldIsNotAnError(t *testing.T) {
	v, err := partition.Extract(sampleRecord(), partition.SourceValue, []string{"does", "not", "exist"})
	assert.NoError(t, err)
	assert.True(t, partition.IsMissing(v))
}

func TestExtractThroughNullField(t *testing.T) {
	v, err := partition.Extract(sampleRecord(), partition.SourceValue, []string{"tag", "anything"})
	assert.NoError(t, err)
	assert.True(t, partition.IsMissing(v))
}

func TestExtractNestedPathOnNonStructIsFatal(t *testing.T) {
	// "region" is a String; traversing past it as if it were a container
	// doesn't match the record's actual shape.
	_, err := partition.Extract(sampleRecord(), partition.SourceValue, []string{"region", "first"})
	assert.ErrorIs(t, err, sinkerr.ErrRecordType)
}

func TestExtractHeaderPresent(t *testing.T) {
	v, err := partition.ExtractHeader(sampleRecord(), "trace-id", nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(77), v.AsInt64())
}

func TestExtractHeaderAbsentIsFatal(t *testing.T) {
	_, err := partition.ExtractHeader(sampleRecord(), "missing-header", nil)
	assert.ErrorIs(t, err, sinkerr.ErrHeaderMissing)
}

func TestRender(t *testing.T) {
	assert.Equal(t, "eu-west-1", partition.Render(record.String("eu-west-1")))
	assert.Equal(t, "42", partition.Render(record.Long(42)))
	assert.Equal(t, "[missing]", partition.Render(partition.Missing))
}

func TestCheckPrimitive(t *testing.T) {
	assert.NoError(t, partition.CheckPrimitive(record.String("ok")))
	assert.NoError(t, partition.CheckPrimitive(partition.Missing))

	err := partition.CheckPrimitive(record.Struct(nil, nil))
	assert.ErrorIs(t, err, sinkerr.ErrNonPrimitiveKey)
}
