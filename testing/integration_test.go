//go:build integration

package testing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/acloudysky/s3drain/drainer"
)

func TestLocalStackContract(t *testing.T) {
	provider := SetupLocalStack(t)
	RunStorageContractTests(t, provider)
}

func TestLocalStackDrain(t *testing.T) {
	provider := SetupLocalStack(t)

	suite := NewIntegrationSuite(t).WithProvider(provider)
	defer suite.Cleanup()

	bucket := suite.CreateTestBucket(GenerateBucketName("drain"), true)
	suite.AssertBucketExists(bucket)

	seed := suite.Seed(bucket, SeedOptions{Objects: 25, Revisions: 3, DeleteMarkers: 5, Prefix: "data/"})
	assert.Equal(t, 20, seed.LiveObjects)
	assert.Equal(t, 80, seed.Entries)

	result := suite.AssertDrained(bucket, drainer.WithPageSize(7), drainer.WithConcurrency(4))
	assert.Equal(t, 20, result.ObjectsDeleted)
	assert.Equal(t, 100, result.VersionsDeleted)
	assert.Equal(t, 3, result.ObjectPages)
}

func TestLocalStackPresign(t *testing.T) {
	provider := SetupLocalStack(t)

	suite := NewIntegrationSuite(t).WithProvider(provider)
	defer suite.Cleanup()

	bucket := suite.CreateTestBucket(GenerateBucketName("presign"), false)
	suite.Seed(bucket, SeedOptions{Objects: 1})

	presigner, err := suite.Client().Presigner()
	AssertNoError(t, err)

	suite.TestOperationReliability(func() error {
		_, err := presigner.PresignGetObject(t.Context(), bucket, "object-0000.txt", time.Minute)
		return err
	}, 2)
}
