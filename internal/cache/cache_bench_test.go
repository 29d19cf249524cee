package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// BenchmarkInMemoryCache_Get_Hit benchmarks cache Get on a hit (includes the copy-out).
func BenchmarkInMemoryCache_Get_Hit(b *testing.B) {
	c := NewInMemoryCache()
	ctx := context.Background()
	_ = c.Set(ctx, "MOW|-|RUB|", testFlights("DXB", "LED", "AER", "IST", "BKK"), 5*time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = c.Get(ctx, "MOW|-|RUB|")
	}
}

// BenchmarkInMemoryCache_Get_Miss benchmarks cache Get on a miss.
func BenchmarkInMemoryCache_Get_Miss(b *testing.B) {
	c := NewInMemoryCache()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = c.Get(ctx, "missing")
	}
}

// BenchmarkInMemoryCache_Parallel benchmarks mixed concurrent reads and writes.
func BenchmarkInMemoryCache_Parallel(b *testing.B) {
	c := NewInMemoryCache()
	ctx := context.Background()
	flights := testFlights("DXB", "LED")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := fmt.Sprintf("k%d", i%16)
			if i%10 == 0 {
				_ = c.Set(ctx, key, flights, time.Minute)
			} else {
				_, _, _ = c.Get(ctx, key)
			}
			i++
		}
	})
}
