// Package adapter decouples the run machinery from any one test framework.
// The master only ever sees suite identities; enumeration and execution go
// through an Adapter implementation.
package adapter

import (
	"context"

	"github.com/randomizedcoder/go-suite-swarm/internal/protocol"
)

// Adapter is the framework integration point. EnumerateSuiteFiles and
// EnumerateSuites feed discovery; RunSuite is called only inside worker
// processes.
type Adapter interface {
	// Name identifies the adapter in logs.
	Name() string

	// EnumerateSuiteFiles lists every candidate file that may contain
	// suites, cheapest first is fine; discovery visits them in order.
	EnumerateSuiteFiles(ctx context.Context) ([]string, error)

	// EnumerateSuites lists the suite names defined in one file.
	EnumerateSuites(ctx context.Context, path string) ([]string, error)

	// RunSuite executes one suite and reports its result. Only workers
	// call this.
	RunSuite(ctx context.Context, pair protocol.SuitePair) protocol.SuiteResult
}
