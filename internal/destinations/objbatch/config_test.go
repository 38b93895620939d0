package objbatch

import (
	"testing"

	"github.com/runreveal/kawa"
	"github.com/runreveal/lib/loader"
	"github.com/runreveal/wtmpd/internal/destinations/objstore"
	"github.com/runreveal/wtmpd/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	loader.Register("objbatch_test", func() loader.Builder[kawa.Destination[types.Event]] {
		return &BlobConfig{}
	})
}

func TestStoreConfigDeserialization(t *testing.T) {
	type testStruct struct {
		Store loader.Loader[objstore.BlobLike] `json:"store"`
	}

	configJSON := []byte(`{
		"store": {
			"type": "s3",
			"region": "us-east-2",
			"bucket": "login-archive"
		}
	}`)

	var ts testStruct
	err := loader.LoadConfig(configJSON, &ts)
	require.NoError(t, err)

	s3Instance, err := ts.Store.Configure()
	require.NoError(t, err)
	assert.NotNil(t, s3Instance)
}

func TestBlobConfigDeserialization(t *testing.T) {
	type testStruct struct {
		Dest loader.Loader[kawa.Destination[types.Event]] `json:"archive"`
	}

	configJSON := []byte(`{
		"archive": {
			"type": "objbatch_test",
			"batchSize": 100,
			"prefix": "hosts/web-1",
			"store": {
				"type": "s3",
				"region": "us-east-2",
				"bucket": "login-archive",
			},
		}
	}`)

	var ts testStruct
	err := loader.LoadConfig(configJSON, &ts)
	require.NoError(t, err)

	dst, err := ts.Dest.Configure()
	require.NoError(t, err)
	require.IsType(t, &ObjectStorage{}, dst)

	obj := dst.(*ObjectStorage)
	assert.Equal(t, 100, obj.batchSize)
	assert.Equal(t, "hosts/web-1", obj.pathPrefix)
}

func TestBlobConfigRequiresStore(t *testing.T) {
	_, err := BlobConfig{BatchSize: 10}.Configure()
	assert.Error(t, err)
}
