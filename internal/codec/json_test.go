package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	in := widget{Name: "sprocket", N: 3}
	raw, err := Marshal(in)
	require.NoError(t, err)

	var out widget
	require.NoError(t, Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}

func TestMustMarshalPanicsOnUnsupportedValue(t *testing.T) {
	assert.Panics(t, func() {
		MustMarshal(make(chan int))
	})
}
