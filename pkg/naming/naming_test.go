package naming

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNormalizeStage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"prod", "live"},
		{"production", "live"},
		{"dev", "dev"},
		{"staging", "stage"},
		{"testing", "test"},
		{"Local", "local"},
		{"My Env!", "my-env"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, NormalizeStage(tt.in), tt.in)
	}
}

func TestResourceName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "search-orders-dlq-live", ResourceName("Search", "Orders", "dlq", "prod"))
	require.Equal(t, "search-dlq-stage", ResourceName("Search", "", "dlq", "stg"))
	require.Equal(t, "search-order-items-replicator-dev", FunctionName("search", "Order_Items", "development"))
	require.Equal(t, "search-orders-errors-test", TopicName("search", "orders", "test"))
}

func TestQueueName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "search-orders-dlq-live", QueueName("search", "orders", "live", false))
	require.Equal(t, "search-orders-dlq-live.fifo", QueueName("search", "orders", "live", true))

	long := strings.Repeat("a", 100)
	require.Len(t, QueueName("search", long, "live", true), MaxQueueNameLen)
	require.True(t, strings.HasSuffix(QueueName("search", long, "live", true), ".fifo"))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "short", Truncate("short", 10))
	require.Equal(t, "short", Truncate("short", 0))

	a := Truncate(strings.Repeat("x", 70)+"-one", MaxFunctionNameLen)
	b := Truncate(strings.Repeat("x", 70)+"-two", MaxFunctionNameLen)
	require.LessOrEqual(t, len(a), MaxFunctionNameLen)
	require.NotEqual(t, a, b)
}

func TestTruncate_AlwaysFitsAndIsDeterministic(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringMatching(`[a-z0-9-]{0,200}`).Draw(t, "name")
		max := rapid.IntRange(1, 128).Draw(t, "max")

		got := Truncate(name, max)
		if len(got) > max {
			t.Fatalf("Truncate(%q, %d) = %q is longer than max", name, max, got)
		}
		if got != Truncate(name, max) {
			t.Fatalf("Truncate(%q, %d) is not deterministic", name, max)
		}
		if len(name) <= max && got != name {
			t.Fatalf("Truncate(%q, %d) changed a name that fits", name, max)
		}
	})
}
