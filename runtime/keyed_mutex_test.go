package runtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_Serializes_Same_Key(t *testing.T) {
	req := require.New(t)
	locks := NewKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("conv-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	req.Equal(50, counter)
	req.Zero(locks.len())
}

func TestKeyedMutex_Different_Keys_Do_Not_Block(t *testing.T) {
	req := require.New(t)
	locks := NewKeyedMutex()

	unlockA := locks.Lock("a")
	unlockB := locks.Lock("b")
	req.Equal(2, locks.len())
	unlockB()
	unlockA()
	req.Zero(locks.len())
}
