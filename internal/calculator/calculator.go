// Package calculator holds the live distribution being edited and keeps its
// measure results current through the compute service.
package calculator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"polarlab/api/internal/compute"
	"polarlab/api/internal/measure"
	"polarlab/api/internal/store"
	"polarlab/api/internal/util"
)

const (
	MinPoints       = 5
	DefaultDebounce = 300 * time.Millisecond
)

var (
	ErrTooFewPoints  = fmt.Errorf("calculator: at least %d points required", MinPoints)
	ErrInvalidWeight = errors.New("calculator: weights must be finite and non-negative")
	// ErrNotReady means the held results do not belong to the current inputs,
	// or none of them has a value.
	ErrNotReady = errors.New("calculator: no results for the current inputs yet")
)

// DefaultWeights is the uniform starting profile.
func DefaultWeights() []float64 {
	return []float64{0.2, 0.2, 0.2, 0.2, 0.2}
}

// Snapshot is a read-only copy of the calculator.
type Snapshot struct {
	X          []float64        `json:"x"`
	Weights    []float64        `json:"weights"`
	Results    []measure.Result `json:"results"`
	Loading    bool             `json:"loading"`
	Generation uint64           `json:"generation"`
	CanSave    bool             `json:"canSave"`

	// Settled is false while the results belong to earlier inputs.
	Settled bool `json:"settled"`
}

// Calculator recomputes measures after every edit, debounced. Each
// dispatched request takes the next generation number and its answer is
// applied only if no later request was dispatched in the meantime; failed
// requests keep the previous results.
type Calculator struct {
	computer compute.Computer
	active   func() []measure.Config
	debounce time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	weights   []float64
	results   []measure.Result
	loading   bool
	scheduled uint64
	gen       uint64
	timer     *time.Timer
	closed    bool

	// resultsFor is the scheduled sequence whose inputs produced results.
	resultsFor uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a calculator with the default weights. active supplies the
// measure set at dispatch time.
func New(computer compute.Computer, active func() []measure.Config, debounce time.Duration, logger *zap.Logger) *Calculator {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Calculator{
		computer: computer,
		active:   active,
		debounce: debounce,
		logger:   logger.Named("calculator"),
		weights:  DefaultWeights(),
		results:  []measure.Result{},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Snapshot returns the current inputs and results.
func (c *Calculator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		X:          store.GenerateX(len(c.weights)),
		Weights:    append([]float64{}, c.weights...),
		Results:    append([]measure.Result{}, c.results...),
		Loading:    c.loading,
		Generation: c.gen,
		CanSave:    canSave(c.results),
		Settled:    c.resultsFor == c.scheduled,
	}
}

// SetWeight parses raw as the weight of point i. Text that is not a finite
// non-negative number is ignored and false returned.
func (c *Calculator) SetWeight(i int, raw string) bool {
	w, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || !validWeight(w) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.weights) {
		return false
	}
	c.weights[i] = w
	c.scheduleLocked()
	return true
}

// SetWeights replaces every weight at once.
func (c *Calculator) SetWeights(weights []float64) error {
	if len(weights) < MinPoints {
		return ErrTooFewPoints
	}
	for _, w := range weights {
		if !validWeight(w) {
			return ErrInvalidWeight
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.weights = append([]float64{}, weights...)
	c.scheduleLocked()
	return nil
}

// AddPoint appends a point with weight 0.
func (c *Calculator) AddPoint() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.weights = append(c.weights, 0)
	c.scheduleLocked()
}

// RemovePoint drops point i unless that would leave fewer than MinPoints.
func (c *Calculator) RemovePoint(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.weights) <= MinPoints || i < 0 || i >= len(c.weights) {
		return false
	}
	c.weights = append(c.weights[:i:i], c.weights[i+1:]...)
	c.scheduleLocked()
	return true
}

// Refresh schedules a recompute without changing the inputs, e.g. after the
// active measure set changed.
func (c *Calculator) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduleLocked()
}

// CanSave reports whether at least one result carries a value.
func (c *Calculator) CanSave() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return canSave(c.results)
}

// BuildDistribution snapshots the calculator as a new distribution. It
// returns ErrNotReady unless the results were computed for the current
// weights and measure set and at least one carries a value.
func (c *Calculator) BuildDistribution(name string) (store.Distribution, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resultsFor != c.scheduled || !canSave(c.results) {
		return store.Distribution{}, ErrNotReady
	}
	return store.NewDistribution(util.NewUUID(), name, c.weights, c.results), nil
}

// Close drops any pending request, cancels the one in flight and waits for
// it to return.
func (c *Calculator) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopTimerLocked()
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

func (c *Calculator) stopTimerLocked() {
	if c.timer != nil && c.timer.Stop() {
		c.wg.Done()
	}
	c.timer = nil
}

// scheduleLocked replaces any pending request with one for the current
// inputs. Nothing is scheduled without a positive weight or without active
// measures.
func (c *Calculator) scheduleLocked() {
	c.stopTimerLocked()
	c.scheduled++
	if c.closed || c.computer == nil {
		return
	}

	var configs []measure.Config
	if c.active != nil {
		configs = c.active()
	}
	if len(configs) == 0 || !hasPositive(c.weights) {
		return
	}

	seq := c.scheduled
	weights := append([]float64{}, c.weights...)
	configs = append([]measure.Config{}, configs...)
	c.wg.Add(1)
	c.timer = time.AfterFunc(c.debounce, func() {
		defer c.wg.Done()
		c.fire(seq, weights, configs)
	})
}

func (c *Calculator) fire(seq uint64, weights []float64, configs []measure.Config) {
	c.mu.Lock()
	if seq != c.scheduled || c.closed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.gen++
	gen := c.gen
	c.loading = true
	c.mu.Unlock()

	results, err := c.computer.Compute(c.ctx, store.GenerateX(len(weights)), weights, configs)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.logger.Debug("discarding stale response", zap.Uint64("generation", gen), zap.Uint64("latest", c.gen))
		return
	}
	c.loading = false
	if err != nil {
		c.logger.Warn("compute failed, keeping previous results", zap.Uint64("generation", gen), zap.Error(err))
		return
	}
	c.results = results
	c.resultsFor = seq
}

func validWeight(w float64) bool {
	return !math.IsNaN(w) && !math.IsInf(w, 0) && w >= 0
}

func hasPositive(weights []float64) bool {
	for _, w := range weights {
		if w > 0 {
			return true
		}
	}
	return false
}

func canSave(results []measure.Result) bool {
	for _, r := range results {
		if r.Value != nil {
			return true
		}
	}
	return false
}
