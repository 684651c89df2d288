// Package backfill fills measure columns a table shows but a member
// distribution has no result for.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"polarlab/api/internal/compute"
	"polarlab/api/internal/measure"
	"polarlab/api/internal/store"
)

// maxInFlight caps concurrent compute requests per Backfill call.
const maxInFlight = 4

// Coordinator issues at most one compute request per (distribution, missing
// set) for its whole lifetime. Attempts are remembered whether they succeed
// or fail.
type Coordinator struct {
	store    *store.Store
	computer compute.Computer
	logger   *zap.Logger

	mu        sync.Mutex
	attempted map[string]struct{}
}

func NewCoordinator(s *store.Store, computer compute.Computer, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:     s,
		computer:  computer,
		logger:    logger.Named("backfill"),
		attempted: make(map[string]struct{}),
	}
}

// Gap is what one distribution lacks relative to a table's columns.
type Gap struct {
	Names []string
	// Configs are the parsed resolvable names and Columns the names they
	// were parsed from, index for index.
	Configs      []measure.Config
	Columns      []string
	Unresolvable []string
}

// Missing lists the table columns dist has no result for, in column order.
// Names that parse become Configs; the rest are Unresolvable.
func Missing(table store.Table, dist store.Distribution) Gap {
	var gap Gap
	for _, name := range table.MeasureOrder {
		if dist.HasMeasure(name) {
			continue
		}
		gap.Names = append(gap.Names, name)
		cfg, err := measure.Parse(name)
		if err != nil {
			gap.Unresolvable = append(gap.Unresolvable, name)
			continue
		}
		gap.Configs = append(gap.Configs, cfg)
		gap.Columns = append(gap.Columns, name)
	}
	return gap
}

// attemptKey identifies a request by distribution and the sorted set of all
// missing names, resolvable or not.
func attemptKey(distID string, names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return distID + ":" + strings.Join(sorted, ",")
}

// Report summarizes one Backfill call. Distribution ids in Requested,
// Skipped and Failed; measure names in Unresolvable.
type Report struct {
	Requested    []string `json:"requested"`
	Skipped      []string `json:"skipped"`
	Failed       []string `json:"failed"`
	Unresolvable []string `json:"unresolvable"`
}

// ErrNoComputer is returned by Backfill when the coordinator has nowhere to
// send requests.
var ErrNoComputer = errors.New("backfill: no computer configured")

// Backfill requests the missing resolvable measures of every member of the
// table and waits for the answers. Results are merged into the distribution
// as it is when the answer arrives; a distribution deleted meanwhile is left
// alone. A failed request is logged and not retried.
func (c *Coordinator) Backfill(ctx context.Context, tableID string) (Report, error) {
	if c.computer == nil {
		return Report{}, ErrNoComputer
	}
	st := c.store.Snapshot()
	table, ok := st.Table(tableID)
	if !ok {
		return Report{}, fmt.Errorf("backfill %s: %w", tableID, store.ErrTableNotFound)
	}

	report := Report{Requested: []string{}, Skipped: []string{}, Failed: []string{}, Unresolvable: []string{}}
	unresolvable := map[string]bool{}

	type job struct {
		dist    store.Distribution
		configs []measure.Config
		columns []string
	}
	var jobs []job
	for _, dist := range st.TableDistributions(tableID) {
		gap := Missing(table, dist)
		for _, name := range gap.Unresolvable {
			if !unresolvable[name] {
				unresolvable[name] = true
				report.Unresolvable = append(report.Unresolvable, name)
			}
		}
		if len(gap.Configs) == 0 {
			continue
		}
		if !c.mark(attemptKey(dist.ID, gap.Names)) {
			report.Skipped = append(report.Skipped, dist.ID)
			continue
		}
		jobs = append(jobs, job{dist: dist, configs: gap.Configs, columns: gap.Columns})
		report.Requested = append(report.Requested, dist.ID)
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxInFlight)
	for _, j := range jobs {
		eg.Go(func() error {
			if err := c.fill(egCtx, j.dist, j.configs, j.columns); err != nil {
				c.logger.Warn("backfill request failed",
					zap.String("table", tableID),
					zap.String("distribution", j.dist.ID),
					zap.Error(err))
				mu.Lock()
				report.Failed = append(report.Failed, j.dist.ID)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()

	if len(jobs) > 0 {
		c.logger.Info("backfill done",
			zap.String("table", tableID),
			zap.Int("requested", len(report.Requested)),
			zap.Int("failed", len(report.Failed)))
	}
	return report, nil
}

// mark records key and reports whether it was new.
func (c *Coordinator) mark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.attempted[key]; ok {
		return false
	}
	c.attempted[key] = struct{}{}
	return true
}

// fill stores each result under the column name it was requested for, which
// may be a non-canonical spelling of the computed measure.
func (c *Coordinator) fill(ctx context.Context, dist store.Distribution, configs []measure.Config, columns []string) error {
	results, err := c.computer.Compute(ctx, dist.X, dist.Weights, configs)
	if err != nil {
		return err
	}
	if len(results) != len(columns) {
		return fmt.Errorf("%w: requested %d, got %d", compute.ErrMisaligned, len(columns), len(results))
	}
	for i := range results {
		results[i].Name = columns[i]
	}
	return c.store.Update(func(st store.State) (store.State, error) {
		current, ok := st.Distribution(dist.ID)
		if !ok {
			return st, nil
		}
		return st.SaveDistribution(current.WithMeasures(results)), nil
	})
}
