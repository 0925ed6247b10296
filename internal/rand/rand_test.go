package rand

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeededConcurrentUse(t *testing.T) {
	seeded := NewSeeded()
	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				f := seeded.Float64()
				require.True(t, f >= 0 && f < 1)
				n := seeded.Intn(10)
				require.True(t, n >= 0 && n < 10)
			}
		}()
	}
	wg.Wait()
}
