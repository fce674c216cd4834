package utils

import (
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParallelMap(t *testing.T) {
	// 空输入
	t.Run("empty input", func(t *testing.T) {
		result := ParallelMap([]int(nil), 4, func(i int) int { return i * 2 })
		assert.Empty(t, result)
	})

	// 单元素输入直接处理
	t.Run("single input", func(t *testing.T) {
		result := ParallelMap([]int{42}, 4, func(i int) int { return i * 2 })
		assert.Equal(t, []int{84}, result)
	})

	// 多元素输入保持顺序
	t.Run("multiple inputs with order", func(t *testing.T) {
		result := ParallelMap([]int{1, 2, 3, 4, 5}, 3, func(i int) int {
			time.Sleep(time.Duration(rand.Intn(10)) * time.Millisecond)
			return i * 2
		})
		assert.Equal(t, []int{2, 4, 6, 8, 10}, result)
	})

	// 并发数不超过 workers
	t.Run("concurrency bounded", func(t *testing.T) {
		input := make([]int, 100)
		for i := range input {
			input[i] = i
		}

		var current, peak int32
		ParallelMap(input, 10, func(i int) int {
			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return i
		})
		assert.LessOrEqual(t, peak, int32(10))
		assert.GreaterOrEqual(t, peak, int32(1))
	})

	// panic 不影响其他任务
	t.Run("panic recovered", func(t *testing.T) {
		result := ParallelMap([]int{1, 2, 3}, 2, func(i int) int {
			if i == 2 {
				panic("boom")
			}
			return i
		})
		assert.Equal(t, []int{1, 0, 3}, result)
	})
}
