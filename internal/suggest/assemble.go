package suggest

import (
	"go.uber.org/zap"

	"autopay-tips/internal/autopay"
	"autopay-tips/internal/fetcher"
	"autopay-tips/internal/reconcile"
	"autopay-tips/internal/registry"
	"autopay-tips/internal/window"
)

// Deps are the collaborators a Suggester is assembled from.
type Deps struct {
	Gateway  fetcher.Gateway
	Contract *autopay.Contract
	Registry *registry.Registry
	Prices   window.PriceSource
	Logger   *zap.Logger
}

// Assemble wires fetcher, evaluator and reconciler over one gateway.
func Assemble(d Deps) *Suggester {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return New(Options{
		Fetcher: fetcher.New(fetcher.Options{
			Gateway:  d.Gateway,
			Contract: d.Contract,
			Registry: d.Registry,
			Logger:   logger.Named("fetcher"),
		}),
		Evaluator: window.NewEvaluator(window.EvaluatorOptions{
			Prices: d.Prices,
			Values: d.Registry,
			Logger: logger.Named("window"),
		}),
		Reconciler: reconcile.New(reconcile.Options{
			Gateway:  d.Gateway,
			Contract: d.Contract,
			Logger:   logger.Named("reconcile"),
		}),
		Registry: d.Registry,
		Logger:   logger,
	})
}
