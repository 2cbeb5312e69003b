package memory_test

import (
	"testing"

	"github.com/warp/payroll-engine/store/memory"
	"github.com/warp/payroll-engine/store/storetest"
)

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		return memory.New()
	})
}
