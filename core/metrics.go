package core

import "github.com/ethereum/go-ethereum/metrics"

// Engine gauges, exported through the standard metrics registry.
var (
	submissionMeter     = metrics.NewRegisteredCounter("vault/submissions", nil)
	submissionFailMeter = metrics.NewRegisteredCounter("vault/submissions/failed", nil)
	operationMeter      = metrics.NewRegisteredCounter("vault/operations", nil)
	callbackMeter       = metrics.NewRegisteredCounter("vault/callbacks", nil)
	submissionTimer     = metrics.NewRegisteredTimer("vault/submissions/duration", nil)
)
