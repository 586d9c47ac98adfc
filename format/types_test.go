package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodingTypeString(t *testing.T) {
	require.Equal(t, "Delta", TypeDelta.String())
	require.Equal(t, "Gorilla", TypeGorilla.String())
	require.Equal(t, "Unknown", EncodingType(0xFF).String())
}
