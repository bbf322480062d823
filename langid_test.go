package usbdevice

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLangIDCache_UninitializedThenPublished(t *testing.T) {
	var c langIDCache
	_, ok := c.get()
	require.False(t, ok)

	got := c.publish([]byte{0x04, 0x03, 0x09, 0x04})
	require.Equal(t, []byte{0x04, 0x03, 0x09, 0x04}, got)

	cached, ok := c.get()
	require.True(t, ok)
	require.Equal(t, got, cached)
}

func TestLangIDCache_ConcurrentPublishConverges(t *testing.T) {
	var c langIDCache
	var wg sync.WaitGroup
	results := make([][]byte, 8)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.publish([]byte{byte(i)})
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		require.Equal(t, results[0], results[i], "every concurrent first-fetcher must converge on the same winner")
	}
}
