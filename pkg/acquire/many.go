package acquire

import (
	"context"
	"sync"

	"github.com/schedscope/schedscope/pkg/schedule"
)

// Outcome is the result of one query of FetchMany.
type Outcome struct {
	Query  schedule.Query
	Result *Result
	Err    error
}

// FetchMany fetches queries with a pool of concurrency workers. Outcomes are
// returned in query order; onDone, if set, is called from the workers as
// each query finishes.
func (f *Fetcher) FetchMany(ctx context.Context, queries []schedule.Query, concurrency int, onDone func(Outcome)) []Outcome {
	out := make([]Outcome, len(queries))
	if len(queries) == 0 {
		return out
	}
	if concurrency < 1 {
		concurrency = 1
	}

	idxChan := make(chan int, len(queries))
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range idxChan {
				q := queries[idx]
				o := Outcome{Query: q}
				if err := ctx.Err(); err != nil {
					o.Err = err
				} else {
					o.Result, o.Err = f.Fetch(ctx, q)
				}
				out[idx] = o
				if onDone != nil {
					onDone(o)
				}
			}
		}()
	}

	for i := range queries {
		idxChan <- i
	}
	close(idxChan)
	wg.Wait()

	return out
}
