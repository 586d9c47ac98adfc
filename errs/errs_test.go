package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoStreamsMatchedErrorUnwrapsToSentinel(t *testing.T) {
	err := &NoStreamsMatchedError{Name: "cpu_usage", Matchers: `service="web"`, Start: 0, End: 100}
	require.ErrorIs(t, err, ErrNoStreamsMatched)

	var target *NoStreamsMatchedError
	require.True(t, errors.As(error(err), &target))
	require.Equal(t, err, target)

	require.Contains(t, err.Error(), "cpu_usage")
	require.Contains(t, err.Error(), `service="web"`)
}
