package annotate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/vkmz/pkg/config"
	"github.com/ChrisMcGann/vkmz/pkg/core"
	"github.com/ChrisMcGann/vkmz/pkg/reference"
)

// WorkerFault aggregates the failures of one annotation run. When it is
// returned no results are returned with it.
type WorkerFault struct {
	Failed int
	Err    error
}

func (e *WorkerFault) Error() string {
	return fmt.Sprintf("annotation failed for %d feature(s): %v", e.Failed, e.Err)
}

func (e *WorkerFault) Unwrap() error { return e.Err }

// Result is the annotation of one input feature. Index is the feature's
// position in the slice passed to Annotate.
type Result struct {
	Index       int
	Feature     core.RawFeature
	Predictions []core.Prediction
}

// Dispatcher annotates raw features against a shared reference table.
type Dispatcher struct {
	cfg      config.Config
	table    *reference.Table
	adjuster Adjuster
	log      *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for per-polarity progress.
func WithLogger(log *zap.Logger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// NewDispatcher validates cfg and binds it to table.
func NewDispatcher(cfg config.Config, table *reference.Table, opts ...Option) (*Dispatcher, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, errors.New("reference table is required")
	}

	d := &Dispatcher{
		cfg:      cfg,
		table:    table,
		adjuster: NewAdjuster(cfg),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the validated configuration in use.
func (d *Dispatcher) Config() config.Config {
	return d.cfg
}

// Predict annotates a single feature. A nil slice with a nil error means no
// reference record was within tolerance.
func (d *Dispatcher) Predict(f core.RawFeature) ([]core.Prediction, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	mass, err := d.adjuster.Adjust(f.MZ, f.Polarity, f.EffectiveCharge())
	if err != nil {
		return nil, err
	}
	if math.IsNaN(mass) || math.IsInf(mass, 0) {
		return nil, fmt.Errorf("adjusted mass for %s is not finite", f.Name)
	}

	candidates := Match(mass, d.cfg.Tolerance, d.table)
	if len(candidates) == 0 {
		return nil, nil
	}

	preds := make([]core.Prediction, len(candidates))
	for i, c := range candidates {
		preds[i] = d.prediction(c)
	}
	return preds, nil
}

func (d *Dispatcher) prediction(c Candidate) core.Prediction {
	elements := c.Record.Elements.Clone()
	vk := core.Ratios(elements)

	delta := c.Delta
	if d.cfg.AbsoluteDelta {
		delta = math.Abs(delta)
	}

	p := core.Prediction{
		Formula:  c.Record.Formula,
		Mass:     c.Record.Mass,
		Delta:    delta,
		Elements: elements,
		HC:       vk.HC,
		OC:       vk.OC,
		NC:       vk.NC,
	}
	if len(d.cfg.ExtraRatios) > 0 {
		p.Extra = make(map[string]float64, len(d.cfg.ExtraRatios))
		for _, el := range d.cfg.ExtraRatios {
			p.Extra[el] = core.ElementRatio(elements, el)
		}
	}
	return p
}

// Annotate predicts formulas for every feature of the configured polarity.
// With polarity "both" the positive and negative subsets are dispatched one
// after the other and the results concatenated, positive first. Features
// without a match are dropped. Results within a subset keep input order
// regardless of parallelism.
func (d *Dispatcher) Annotate(ctx context.Context, features []core.RawFeature) ([]Result, error) {
	for i := range features {
		if !features[i].Polarity.IsIonMode() {
			return nil, fmt.Errorf("feature %d (%s): %w: %q", i, features[i].Name, core.ErrInvalidPolarity, features[i].Polarity)
		}
	}

	var modes []core.Polarity
	switch d.cfg.Polarity {
	case core.Both:
		modes = []core.Polarity{core.Positive, core.Negative}
	default:
		modes = []core.Polarity{d.cfg.Polarity}
	}

	var results []Result
	for _, mode := range modes {
		var indices []int
		for i, f := range features {
			if f.Polarity == mode {
				indices = append(indices, i)
			}
		}

		subset, err := d.dispatch(ctx, features, indices)
		if err != nil {
			return nil, err
		}

		d.log.Info("annotated polarity subset",
			zap.String("polarity", string(mode)),
			zap.Int("features", len(indices)),
			zap.Int("matched", len(subset)),
			zap.Int("dropped", len(indices)-len(subset)),
		)
		results = append(results, subset...)
	}

	return results, nil
}

// dispatch annotates features[indices] on a bounded worker pool. Each worker
// writes only its own slot, so the joined slice is in input order.
func (d *Dispatcher) dispatch(ctx context.Context, features []core.RawFeature, indices []int) ([]Result, error) {
	slots := make([][]core.Prediction, len(indices))

	var (
		mu     sync.Mutex
		faults error
		failed int
	)
	fail := func(err error) {
		mu.Lock()
		faults = multierr.Append(faults, err)
		failed++
		mu.Unlock()
	}

	if d.cfg.Parallelism == 1 {
		for slot, idx := range indices {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			preds, err := d.predictSafe(idx, features[idx])
			if err != nil {
				return nil, &WorkerFault{Failed: 1, Err: err}
			}
			slots[slot] = preds
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.cfg.Parallelism)

		for slot, idx := range indices {
			if gctx.Err() != nil {
				break
			}
			slot, idx := slot, idx
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				preds, err := d.predictSafe(idx, features[idx])
				if err != nil {
					fail(err)
					return err
				}
				slots[slot] = preds
				return nil
			})
		}

		if err := g.Wait(); err != nil || faults != nil {
			return nil, &WorkerFault{Failed: failed, Err: faults}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	var out []Result
	for slot, idx := range indices {
		if len(slots[slot]) == 0 {
			continue
		}
		out = append(out, Result{Index: idx, Feature: features[idx], Predictions: slots[slot]})
	}
	return out, nil
}

// predictSafe runs Predict and converts a panic into an error so one bad item
// cannot take down the pool.
func (d *Dispatcher) predictSafe(idx int, f core.RawFeature) (preds []core.Prediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("feature %d (%s): panic: %v", idx, f.Name, r)
		}
	}()

	preds, err = d.Predict(f)
	if err != nil {
		return nil, fmt.Errorf("feature %d (%s): %w", idx, f.Name, err)
	}
	return preds, nil
}
