package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorCodec(t *testing.T) {
	v := []float32{0, -1.5, 3.25, 1e-7}
	got, err := DecodeVector(EncodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	empty, err := DecodeVector(EncodeVector(nil))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
