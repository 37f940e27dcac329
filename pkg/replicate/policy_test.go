package replicate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPolicy_ZeroValue(t *testing.T) {
	t.Parallel()

	var p Policy
	require.Equal(t, Success, p.Classify(OpUpsert, 201))
	require.Equal(t, Success, p.Classify(OpUpsert, 200))
	require.Equal(t, Success, p.Classify(OpDelete, 404))
	require.Equal(t, Retryable, p.Classify(OpUpsert, 404))
	require.Equal(t, NonRetryable, p.Classify(OpUpsert, 400))
	require.Equal(t, NonRetryable, p.Classify(OpDelete, 400))
	require.Equal(t, Retryable, p.Classify(OpUpsert, 409))
	require.Equal(t, Retryable, p.Classify(OpUpsert, 429))
	require.Equal(t, Retryable, p.Classify(OpUpsert, 503))
	require.Equal(t, []int{400}, p.NonRetryableStatuses())
}

func TestPolicy_Configured(t *testing.T) {
	t.Parallel()

	p := NewPolicy(409, 400)
	require.Equal(t, NonRetryable, p.Classify(OpUpsert, 409))
	require.Equal(t, NonRetryable, p.Classify(OpUpsert, 400))
	require.Equal(t, Retryable, p.Classify(OpUpsert, 413))
	require.Equal(t, []int{400, 409}, p.NonRetryableStatuses())

	require.Equal(t, []int{400}, NewPolicy().NonRetryableStatuses())
}

func TestPolicy_ConfiguredStatusesExtendBadRequest(t *testing.T) {
	t.Parallel()

	p := NewPolicy(409)
	require.Equal(t, NonRetryable, p.Classify(OpUpsert, 400))
	require.Equal(t, NonRetryable, p.Classify(OpDelete, 400))
	require.Equal(t, NonRetryable, p.Classify(OpUpsert, 409))
	require.Equal(t, Retryable, p.Classify(OpUpsert, 429))
	require.Equal(t, []int{400, 409}, p.NonRetryableStatuses())
}

func TestStatusClass_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "success", Success.String())
	require.Equal(t, "non_retryable", NonRetryable.String())
	require.Equal(t, "retryable", Retryable.String())
	require.Equal(t, "unknown", StatusClass(9).String())
}
