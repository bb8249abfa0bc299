//go:build integration

package s3

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestClient uses LOCALSTACK_ENDPOINT, or localhost:4566.
func createTestClient(t *testing.T) *s3.Client {
	t.Helper()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}

	cfg, err := awsConfig.LoadDefaultConfig(context.Background(),
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = &endpoint
		o.UsePathStyle = true
	})
}

func TestLocalstackReadWrite(t *testing.T) {
	ctx := context.Background()
	client := createTestClient(t)

	bucket := "dittoaccel-bdev-test"
	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	require.NoError(t, err)
	t.Cleanup(func() {
		list, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
		if err == nil {
			for _, obj := range list.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: obj.Key})
			}
		}
		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
	})

	d, err := New(client, Config{Name: "S3Disk", Bucket: bucket, BlockSize: 4096, NumBlocks: 16})
	require.NoError(t, err)
	require.NoError(t, d.HealthCheck(ctx))

	data := bytes.Repeat([]byte("localstack"), 819)
	data = append(data, make([]byte, 8192-len(data))...)
	require.NoError(t, d.WriteBlocks(ctx, 5, data))

	got := make([]byte, 3*4096)
	require.NoError(t, d.ReadBlocks(ctx, 4, got))
	assert.Equal(t, make([]byte, 4096), got[:4096])
	assert.Equal(t, data, got[4096:])
}
