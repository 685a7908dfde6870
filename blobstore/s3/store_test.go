package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/classdb/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestStore_Open(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")

	t.Run("NotFound", func(t *testing.T) {
		mockClient.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
			return *in.Bucket == "test-bucket" && *in.Key == "prefix/foo"
		})).Return(nil, &types.NotFound{}).Once()

		_, err := store.Open(context.Background(), "foo")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("ReadAll", func(t *testing.T) {
		mockClient.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
			return *in.Key == "prefix/CURRENT"
		})).Return(&s3.HeadObjectOutput{ContentLength: aws.Int64(16)}, nil).Once()
		mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
			return *in.Key == "prefix/CURRENT" && *in.Range == "bytes=0-15"
		})).Return(&s3.GetObjectOutput{
			Body: io.NopCloser(strings.NewReader("TABLE-000001.bin")),
		}, nil).Once()

		data, err := blobstore.ReadAll(context.Background(), store, "CURRENT")
		require.NoError(t, err)
		assert.Equal(t, "TABLE-000001.bin", string(data))
	})

	mockClient.AssertExpectations(t)
}

func TestStore_Put(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")

	data := []byte("payload")
	mockClient.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Key == "prefix/TABLE-000001.bin" &&
			aws.ToInt64(in.ContentLength) == int64(len(data)) &&
			aws.ToString(in.ChecksumCRC32C) == computeCRC32C(data)
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	require.NoError(t, store.Put(context.Background(), "TABLE-000001.bin", data))
	mockClient.AssertExpectations(t)
}

func TestStore_Delete(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")

	mockClient.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return *in.Bucket == "test-bucket" && *in.Key == "prefix/del"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()
	mockClient.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return *in.Key == "prefix/gone"
	})).Return(nil, &types.NoSuchKey{}).Once()

	assert.NoError(t, store.Delete(context.Background(), "del"))
	assert.NoError(t, store.Delete(context.Background(), "gone"))
	mockClient.AssertExpectations(t)
}

func TestStore_List(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix/")

	mockClient.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return *in.Bucket == "test-bucket" && *in.Prefix == "prefix/TABLE-"
	})).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{
			{Key: aws.String("prefix/TABLE-000002.bin")},
			{Key: aws.String("prefix/TABLE-000001.bin")},
		},
	}, nil).Once()

	keys, err := store.List(context.Background(), "TABLE-")
	require.NoError(t, err)
	assert.Equal(t, []string{"TABLE-000001.bin", "TABLE-000002.bin"}, keys)
}

func TestDDBCommitStore(t *testing.T) {
	ctx := context.Background()
	ddb := new(MockDDBClient)
	store := NewDDBCommitStore(NewStore(new(MockS3Client), "bucket", "db"), ddb, "commits", "s3://bucket/db")

	t.Run("no commits yet", func(t *testing.T) {
		ddb.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil).Once()

		_, err := store.Open(ctx, CurrentBlobName)
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	latest := &dynamodb.QueryOutput{Items: []map[string]ddbtypes.AttributeValue{{
		"version": &ddbtypes.AttributeValueMemberN{Value: "3"},
		"blob":    &ddbtypes.AttributeValueMemberS{Value: "TABLE-000003.bin"},
	}}}

	t.Run("read current", func(t *testing.T) {
		ddb.On("Query", mock.Anything, mock.Anything).Return(latest, nil).Once()

		data, err := blobstore.ReadAll(ctx, store, CurrentBlobName)
		require.NoError(t, err)
		assert.Equal(t, "TABLE-000003.bin", string(data))
	})

	t.Run("commit next version", func(t *testing.T) {
		ddb.On("Query", mock.Anything, mock.Anything).Return(latest, nil).Once()
		ddb.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
			v, ok := in.Item["version"].(*ddbtypes.AttributeValueMemberN)
			return ok && v.Value == "4" && aws.ToString(in.ConditionExpression) == "attribute_not_exists(version)"
		})).Return(&dynamodb.PutItemOutput{}, nil).Once()

		require.NoError(t, store.Put(ctx, CurrentBlobName, []byte("TABLE-000004.bin")))
	})

	t.Run("lost race", func(t *testing.T) {
		ddb.On("Query", mock.Anything, mock.Anything).Return(latest, nil).Once()
		ddb.On("PutItem", mock.Anything, mock.Anything).
			Return(nil, &ddbtypes.ConditionalCheckFailedException{}).Once()

		err := store.Put(ctx, CurrentBlobName, []byte("TABLE-000004.bin"))
		assert.ErrorIs(t, err, ErrConcurrentModification)
	})

	ddb.AssertExpectations(t)
}
