package utils

import (
	"runtime/debug"
	"sync"

	"flash-swap-sol/pkg/logger"
)

// ParallelMap 以最多 workers 个 goroutine 并发执行 fn，返回结果与输入顺序一致。
// 输入不超过 1 条或 workers <= 1 时直接串行处理。
// fn 发生 panic 时记录日志，对应位置保留零值。
func ParallelMap[T any, R any](input []T, workers int, fn func(T) R) []R {
	results := make([]R, len(input))
	if len(input) == 0 {
		return results
	}

	call := func(i int) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[ParallelMap] panic at index %d: %v, stack=%s", i, r, debug.Stack())
			}
		}()
		results[i] = fn(input[i])
	}

	if len(input) == 1 || workers <= 1 {
		for i := range input {
			call(i)
		}
		return results
	}

	workers = min(workers, len(input))
	indexes := make(chan int, len(input))
	for i := range input {
		indexes <- i
	}
	close(indexes)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indexes {
				call(i)
			}
		}()
	}
	wg.Wait()
	return results
}

