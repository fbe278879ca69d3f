// Package casebatch provides an embeddable runner that works through a
// durable queue of cases with a pool of supervised executors.
//
// Cases live in a SQLite database. Workers claim batches of cases, hand each
// one to an [Executor] and write the result back. A supervisor replaces
// workers whose executor fails, and the run ends once no claimable case
// remains. Cases claimed by a failed worker stay claimed until they are
// released explicitly (see the casebatch CLI "clean" command).
//
// # Basic Usage
//
//	cfg := casebatch.Config{
//	    DBPath:     "cases.db",
//	    Jobs:       8,
//	    ServiceURL: "http://localhost:2926",
//	}
//
//	runner, err := casebatch.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer runner.Close()
//
//	if err := runner.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	if err := runner.Wait(ctx); err != nil {
//	    log.Printf("run ended: %v", err)
//	}
//
// # Executors
//
// Without options the executor is chosen from the configuration: an HTTP
// executor when ServiceURL is set, or an external command when Command is
// set. Use [WithExecutorFactory] to supply your own implementation.
//
// # Lifecycle States
//
// A runner moves through Stopped, Starting, Running, Stopping and Crashed.
// [Runner.Status] reports the current state and [WithEventHandler] receives
// every transition.
package casebatch
