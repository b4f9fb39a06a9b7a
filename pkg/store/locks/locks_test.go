package locks

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializesPerKey(t *testing.T) {
	var k Keyed
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("c1")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, k.Len())
}

func TestReleasedKeysAreEvicted(t *testing.T) {
	var k Keyed
	a := k.Lock("a")
	b := k.Lock("b")
	assert.Equal(t, 2, k.Len())
	a()
	assert.Equal(t, 1, k.Len())
	b()
	assert.Equal(t, 0, k.Len())
}

func TestWaiterKeepsEntryAlive(t *testing.T) {
	var k Keyed
	unlock := k.Lock("a")
	acquired := make(chan func())
	go func() { acquired <- k.Lock("a") }()

	// the first holder releasing must not evict the entry the waiter uses
	require.Eventually(t, func() bool { return k.refs("a") == 2 }, time.Second, time.Millisecond)
	unlock()
	second := <-acquired
	assert.Equal(t, 1, k.Len())
	second()
	assert.Equal(t, 0, k.Len())
}

func (k *Keyed) refs(key string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if e, ok := k.m[key]; ok {
		return e.refs
	}
	return 0
}
