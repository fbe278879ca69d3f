package casebatch_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bft-labs/casebatch/pkg/casebatch"
)

// scoreExecutor stands in for a real likelihood-ratio service.
type scoreExecutor struct{}

func (scoreExecutor) Execute(ctx context.Context, c casebatch.Case) (casebatch.Result, error) {
	return casebatch.Result{"lr": float64(c.Contributors) * 10}, nil
}

func (scoreExecutor) Close() error { return nil }

// ExampleNew shows how to embed a runner with a custom executor.
func ExampleNew() {
	dir, err := os.MkdirTemp("", "casebatch-example")
	if err != nil {
		fmt.Printf("failed to create temp dir: %v\n", err)
		return
	}
	defer os.RemoveAll(dir)

	cfg := casebatch.Config{
		DBPath: filepath.Join(dir, "cases.db"),
		Jobs:   2,
	}

	factory := casebatch.ExecutorFactoryFunc(func(ctx context.Context, slot int) (casebatch.Executor, error) {
		return scoreExecutor{}, nil
	})

	runner, err := casebatch.New(cfg, casebatch.WithExecutorFactory(factory))
	if err != nil {
		fmt.Printf("failed to create runner: %v\n", err)
		return
	}
	defer runner.Close()

	ctx := context.Background()
	for _, evidence := range []string{"E01.csv", "E02.csv", "E03.csv"} {
		if _, err := runner.AddCase(ctx, casebatch.Case{
			Profile:      "P01.csv",
			Evidence:     evidence,
			Contributors: 2,
			Quantity:     500,
			Theta:        0.01,
		}); err != nil {
			fmt.Printf("failed to add case: %v\n", err)
			return
		}
	}

	if err := runner.Start(ctx); err != nil {
		fmt.Printf("failed to start: %v\n", err)
		return
	}
	if err := runner.Wait(ctx); err != nil {
		fmt.Printf("run failed: %v\n", err)
		return
	}

	counts, err := runner.Counts(ctx)
	if err != nil {
		fmt.Printf("failed to read counts: %v\n", err)
		return
	}
	fmt.Println(counts)
	fmt.Println(runner.Status())

	// Output:
	// Progressing/Finished/Total 0/3/3 (100.00%)
	// Stopped
}
