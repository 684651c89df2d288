package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"polarlab/api/internal/backfill"
	"polarlab/api/internal/calculator"
	"polarlab/api/internal/compute"
	"polarlab/api/internal/config"
	"polarlab/api/internal/export"
	"polarlab/api/internal/measure"
	"polarlab/api/internal/reconcile"
	"polarlab/api/internal/store"
)

// Pinger reports backend health for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type alienationLister interface {
	AlienationFunctions(ctx context.Context) ([]string, error)
}

// Service is the single entry point of the HTTP layer into the workspace.
type Service struct {
	cfg        config.Config
	store      *store.Store
	backend    Pinger
	computer   compute.Computer
	backfill   *backfill.Coordinator
	calculator *calculator.Calculator
	exporter   *export.Service
	logger     *zap.Logger
}

// New wires the workspace services around st. backend may be nil when
// nothing is persisted; objects may be nil to disable export publishing.
func New(cfg config.Config, st *store.Store, backend Pinger, computer compute.Computer, objects export.ObjectStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	active := func() []measure.Config { return st.Snapshot().ActiveMeasures }
	svc := &Service{
		cfg:        cfg,
		store:      st,
		backend:    backend,
		computer:   computer,
		backfill:   backfill.NewCoordinator(st, computer, logger),
		calculator: calculator.New(computer, active, cfg.Debounce, logger),
		exporter:   export.NewService(st, objects, logger),
		logger:     logger,
	}
	svc.calculator.Refresh()
	return svc
}

// Close stops background compute work.
func (s *Service) Close() {
	s.calculator.Close()
}

func (s *Service) Ping(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Ping(ctx)
}

func (s *Service) State() store.State {
	return s.store.Snapshot()
}

// Measures

func (s *Service) Registry() []measure.KindSpec {
	return measure.Registry()
}

func (s *Service) ActiveMeasures() []measure.Config {
	return s.store.Snapshot().ActiveMeasures
}

// SetActiveMeasures validates and replaces the calculator's measure set and
// triggers a recompute.
func (s *Service) SetActiveMeasures(configs []measure.Config) error {
	for i, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return domainError(http.StatusUnprocessableEntity, "INVALID_MEASURE", err.Error(), map[string]any{"index": i})
		}
	}
	s.store.SetActiveMeasures(configs)
	s.calculator.Refresh()
	return nil
}

func (s *Service) ParseMeasure(name string) (measure.Config, error) {
	return measure.Parse(name)
}

func (s *Service) AlienationFunctions(ctx context.Context) ([]string, error) {
	lister, ok := s.computer.(alienationLister)
	if !ok {
		return measure.AlienationFunctions, nil
	}
	keys, err := lister.AlienationFunctions(ctx)
	if err != nil {
		return nil, serviceUnavailable(err)
	}
	return keys, nil
}

// Tables

func (s *Service) AddTable(name string) (store.Table, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Table{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	return s.store.AddTable(name), nil
}

func (s *Service) RemoveTable(id string) error {
	if id == store.DefaultTableID {
		return store.ErrReadOnlyTable
	}
	if _, ok := s.store.Snapshot().Table(id); !ok {
		return store.ErrTableNotFound
	}
	s.store.RemoveTable(id)
	return nil
}

// AddToTable reports false when the distribution was already a member.
func (s *Service) AddToTable(tableID, distID string) (bool, error) {
	st := s.store.Snapshot()
	if _, ok := st.Table(tableID); !ok {
		return false, store.ErrTableNotFound
	}
	if tableID == store.DefaultTableID {
		return false, store.ErrReadOnlyTable
	}
	if _, ok := st.Distribution(distID); !ok {
		return false, store.ErrDistributionNotFound
	}
	return s.store.AddToTable(tableID, distID), nil
}

func (s *Service) RemoveFromTable(tableID, distID string) error {
	return s.store.RemoveFromTable(tableID, distID)
}

// Reorder moves a measure row or a distribution column of a table.
func (s *Service) Reorder(tableID, kind string, from, to int) error {
	switch kind {
	case "measure":
		return s.store.ReorderMeasure(tableID, from, to)
	case "distribution":
		return s.store.ReorderDistribution(tableID, from, to)
	default:
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "kind must be measure or distribution", nil)
	}
}

// TableView fills what it can of the table and returns the rendered grid.
func (s *Service) TableView(ctx context.Context, tableID string) (backfill.View, backfill.Report, error) {
	return s.backfill.View(ctx, tableID)
}

// Calculator

func (s *Service) Calculator() calculator.Snapshot {
	return s.calculator.Snapshot()
}

func (s *Service) SetWeights(weights []float64) error {
	return s.calculator.SetWeights(weights)
}

func (s *Service) SetWeight(index int, raw string) error {
	if !s.calculator.SetWeight(index, raw) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "weight must be a non-negative number", map[string]any{"index": index})
	}
	return nil
}

func (s *Service) AddPoint() {
	s.calculator.AddPoint()
}

func (s *Service) RemovePoint(index int) error {
	if !s.calculator.RemovePoint(index) {
		return domainError(http.StatusConflict, "MIN_POINTS", "a distribution needs at least 5 points", map[string]any{"index": index})
	}
	return nil
}

type SaveInput struct {
	Name         string   `json:"name"`
	TableIDs     []string `json:"tableIds"`
	NewTableName string   `json:"newTableName"`
}

// SaveCalculator files the calculator's current distribution into tables.
func (s *Service) SaveCalculator(input SaveInput) (reconcile.Outcome, error) {
	dist, err := s.calculator.BuildDistribution(input.Name)
	if err != nil {
		return reconcile.Outcome{}, err
	}
	outcome, err := reconcile.Save(s.store, reconcile.Request{
		Distribution: dist,
		TableIDs:     input.TableIDs,
		NewTableName: input.NewTableName,
	})
	if err != nil {
		return reconcile.Outcome{}, err
	}
	s.logger.Info("distribution saved",
		zap.String("distribution", outcome.DistributionID),
		zap.Bool("created", outcome.Created),
		zap.Int("merged", len(outcome.Merged)),
		zap.Strings("skipped", outcome.Skipped))
	return outcome, nil
}

// Export

func (s *Service) Export(ctx context.Context) (*export.Result, error) {
	return s.exporter.Export(ctx)
}

func (s *Service) PublishExport(ctx context.Context) (string, error) {
	key, err := s.exporter.Publish(ctx)
	if err != nil && !errors.Is(err, export.ErrUploadDisabled) && !errors.Is(err, export.ErrNothingToExport) {
		return "", serviceUnavailable(err)
	}
	return key, err
}

func serviceUnavailable(err error) error {
	return domainError(http.StatusBadGateway, "UPSTREAM_ERROR", err.Error(), nil)
}
