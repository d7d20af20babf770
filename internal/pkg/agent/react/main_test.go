package react_test

import (
	"testing"

	"go.uber.org/goleak"
)

// 循环结束后不应残留任何 goroutine。
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
