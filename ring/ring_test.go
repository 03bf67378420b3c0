package ring

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextPowerOfTwo(t *testing.T) {
	cases := map[int]int{
		0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 16: 16, 17: 32, 1000: 1024,
	}
	for in, want := range cases {
		assert.Equal(t, want, nextPowerOfTwo(in), "in=%d", in)
	}
}

func TestSPSC_RoundTrip(t *testing.T) {
	r := NewSPSC[int](8)
	require.Equal(t, 8, r.Cap())

	const n = 1000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			for r.Push(i) != nil {
			}
		}
	}()

	got := make([]int, 0, n)
	for len(got) < n {
		v, err := r.Pop()
		if err != nil {
			continue
		}
		got = append(got, v)
	}
	<-done

	for i, v := range got {
		assert.Equal(t, i, v)
	}
	assert.True(t, r.IsEmpty())
}

func TestSPSC_CapacityOneBoundary(t *testing.T) {
	r := NewSPSC[int](1)
	require.Equal(t, 1, r.Cap())

	assert.True(t, r.IsEmpty())
	require.NoError(t, r.Push(42))
	assert.True(t, r.IsFull())
	require.ErrorIs(t, r.Push(43), Full)

	v, err := r.Pop()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, r.IsEmpty())

	_, err = r.Pop()
	require.ErrorIs(t, err, Empty)
}

func TestSPSC_BatchPrefixConsistency(t *testing.T) {
	r := NewSPSC[int](4)
	require.NoError(t, r.PushBatch([]int{1, 2, 3}))
	require.ErrorIs(t, r.PushBatch([]int{4, 5}), Full)

	out := make([]int, 2)
	n, err := r.PopBatch(out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{1, 2}, out)

	out = make([]int, 4)
	n, err = r.PopBatch(out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, out[0])

	_, err = r.PopBatch(out)
	require.ErrorIs(t, err, Empty)
}

func TestMPMC_Contention(t *testing.T) {
	r := NewMPMC[int](64)

	const producers = 4
	const perProducer = 2500
	const total = producers * perProducer

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for r.Push(base*perProducer+i) != nil {
				}
			}
		}(p)
	}

	seen := make([]bool, total)
	var mu sync.Mutex
	var consumerWg sync.WaitGroup
	const consumers = 4
	consumerWg.Add(consumers)
	count := 0
	for c := 0; c < consumers; c++ {
		go func() {
			defer consumerWg.Done()
			for {
				mu.Lock()
				if count >= total {
					mu.Unlock()
					return
				}
				mu.Unlock()

				v, err := r.Pop()
				if err != nil {
					continue
				}
				mu.Lock()
				if seen[v] {
					mu.Unlock()
					t.Errorf("duplicate value popped: %d", v)
					continue
				}
				seen[v] = true
				count++
				done := count >= total
				mu.Unlock()
				if done {
					return
				}
			}
		}()
	}

	wg.Wait()
	consumerWg.Wait()

	for i, ok := range seen {
		assert.True(t, ok, "value %d never popped", i)
	}
}

func TestMPSC_SingleConsumerDrainsAllPushes(t *testing.T) {
	r := NewMPSC[int](128)
	const producers = 4
	const perProducer = 200

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for r.Push(i) != nil {
				}
			}
		}()
	}
	wg.Wait()

	count := 0
	for {
		_, err := r.Pop()
		if errors.Is(err, Empty) {
			break
		}
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, producers*perProducer, count)
}

func TestSPMC_MultiConsumerDrain(t *testing.T) {
	r := NewSPMC[int](128)
	const n = 1000
	for i := 0; i < n; i++ {
		require.NoError(t, r.Push(i))
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	total := 0
	const consumers = 4
	wg.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func() {
			defer wg.Done()
			local := 0
			for {
				_, err := r.Pop()
				if errors.Is(err, Empty) {
					break
				}
				local++
			}
			mu.Lock()
			total += local
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, n, total)
}

func TestCounted_TracksTraffic(t *testing.T) {
	c := NewCounted[int](NewSPSC[int](2))

	require.NoError(t, c.Push(1))
	require.NoError(t, c.Push(2))
	require.ErrorIs(t, c.Push(3), Full)

	_, err := c.Pop()
	require.NoError(t, err)
	_, err = c.Pop()
	require.NoError(t, err)
	_, err = c.Pop()
	require.ErrorIs(t, err, Empty)

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Pushed)
	assert.Equal(t, uint64(1), stats.PushDropped)
	assert.Equal(t, uint64(2), stats.Popped)
	assert.Equal(t, uint64(1), stats.PopEmpty)
}
