package engine

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/testpilot/testpilot/model"
)

func TestGoTestInvoker_ReproCommand(t *testing.T) {
	inv := NewGoTestInvoker(zerolog.Nop(), 0)

	tc := model.TestCase{
		ID:   "orders.TestCreateOrder",
		Name: "TestCreateOrder",
		File: "/repo/orders/orders_test.go",
	}
	assert.Equal(t, "cd /repo/orders && go test -count=1 -run '^TestCreateOrder$' .", inv.ReproCommand(tc))
}

func TestGoTestInvoker_ReproCommandQuotesPaths(t *testing.T) {
	inv := NewGoTestInvoker(zerolog.Nop(), 0)

	tc := model.TestCase{
		ID:   "orders.TestCreateOrder",
		Name: "TestCreateOrder",
		File: "/repo/my project/orders_test.go",
	}
	assert.Contains(t, inv.ReproCommand(tc), "'/repo/my project'")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 100))

	long := strings.Repeat("x", 200) + "FAIL: TestA"
	got := truncate(long, 50)
	assert.True(t, strings.HasPrefix(got, "..."))
	// The tail survives: go test prints the failure last.
	assert.True(t, strings.HasSuffix(got, "FAIL: TestA"))
	assert.Len(t, got, 53)
}
