package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"polarlab/api/internal/config"
	"polarlab/api/internal/measure"
	"polarlab/api/internal/store"
)

// fakeComputer answers every measure with 0.5, except BiPol which fails.
type fakeComputer struct{}

func (fakeComputer) Compute(_ context.Context, _, _ []float64, configs []measure.Config) ([]measure.Result, error) {
	out := make([]measure.Result, len(configs))
	for i, cfg := range configs {
		name := measure.Name(cfg)
		if cfg.Type == measure.KindBiPol {
			out[i] = measure.NewError(name, "not defined")
			continue
		}
		out[i] = measure.NewValue(name, 0.5)
	}
	return out, nil
}

func (fakeComputer) AlienationFunctions(context.Context) ([]string, error) {
	return []string{"d", "d^2"}, nil
}

func newTestServer(t *testing.T, backend Pinger) *HTTPServer {
	t.Helper()
	return newTestServerWithConfig(t, config.Config{Debounce: time.Millisecond}, backend)
}

func newTestServerWithConfig(t *testing.T, cfg config.Config, backend Pinger) *HTTPServer {
	t.Helper()
	st := store.New(store.BuiltinDefaults().State(), nil)
	svc := New(cfg, st, backend, fakeComputer{}, nil, nil)
	t.Cleanup(svc.Close)
	return NewHTTPServer(svc, "*", nil)
}

func do(t *testing.T, server *HTTPServer, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rr.Body.String(), err)
	}
	return out
}

func expectCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	if code == "" {
		return
	}
	body := decode[map[string]any](t, rr)
	if body["code"] != code {
		t.Fatalf("expected code %s, got %v", code, body["code"])
	}
}

func waitForResults(t *testing.T, server *HTTPServer) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := server.service.Calculator(); snap.CanSave && snap.Settled {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("calculator never produced results")
}

func TestMiddlewareSetsHeaders(t *testing.T) {
	server := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Header().Get("X-Request-ID") != "abc" {
		t.Errorf("request id not echoed: %q", rr.Header().Get("X-Request-ID"))
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}

	rr = do(t, server, http.MethodGet, "/api/health", nil)
	if !strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_") {
		t.Errorf("expected generated request id, got %q", rr.Header().Get("X-Request-ID"))
	}

	rr = do(t, server, http.MethodOptions, "/api/tables", nil)
	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", rr.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	server := newTestServer(t, nil)
	expectCode(t, do(t, server, http.MethodGet, "/api/nope", nil), http.StatusNotFound, "NOT_FOUND")
	expectCode(t, do(t, server, http.MethodGet, "/other", nil), http.StatusNotFound, "NOT_FOUND")
}

func TestStateEndpoint(t *testing.T) {
	server := newTestServer(t, nil)
	rr := do(t, server, http.MethodGet, "/api/state", nil)
	expectCode(t, rr, http.StatusOK, "")

	st := decode[store.State](t, rr)
	if len(st.Tables) != 1 || st.Tables[0].ID != store.DefaultTableID {
		t.Fatalf("unexpected tables %+v", st.Tables)
	}
	if len(st.ActiveMeasures) != len(measure.DefaultActive()) {
		t.Fatalf("unexpected active measures %+v", st.ActiveMeasures)
	}
}

func TestActiveMeasures(t *testing.T) {
	server := newTestServer(t, nil)

	invalid := map[string]any{"measures": []map[string]any{
		{"type": "EMD", "params": map[string]any{}},
		{"type": "EstebanRay", "params": map[string]any{"alpha": -1}},
	}}
	expectCode(t, do(t, server, http.MethodPut, "/api/measures/active", invalid), http.StatusUnprocessableEntity, "INVALID_MEASURE")

	valid := map[string]any{"measures": []map[string]any{
		{"type": "GeneralizedER", "params": map[string]any{"alpha": 1.5, "alienation": "d^2"}},
	}}
	rr := do(t, server, http.MethodPut, "/api/measures/active", valid)
	expectCode(t, rr, http.StatusOK, "")
	body := decode[map[string]any](t, rr)
	names, _ := body["names"].([]any)
	if len(names) != 1 || names[0] != "GER(1.5,d^2)" {
		t.Fatalf("unexpected names %v", body["names"])
	}

	rr = do(t, server, http.MethodGet, "/api/measures/active", nil)
	expectCode(t, rr, http.StatusOK, "")
	got := decode[struct {
		Measures []measure.Config `json:"measures"`
	}](t, rr)
	if len(got.Measures) != 1 || got.Measures[0].Type != measure.KindGeneralizedER {
		t.Fatalf("active measures not replaced: %+v", got.Measures)
	}
}

func TestParseMeasure(t *testing.T) {
	server := newTestServer(t, nil)

	rr := do(t, server, http.MethodPost, "/api/measures/parse", map[string]string{"name": "MEC(2,exp(d)-1)"})
	expectCode(t, rr, http.StatusOK, "")
	body := decode[struct {
		Config measure.Config `json:"config"`
		Name   string         `json:"name"`
	}](t, rr)
	if body.Config.Type != measure.KindGeneralizedMEC || body.Name != "GMEC(2,exp(d)-1)" {
		t.Fatalf("unexpected parse %+v", body)
	}

	expectCode(t, do(t, server, http.MethodPost, "/api/measures/parse", map[string]string{"name": "Experts mean"}),
		http.StatusUnprocessableEntity, "UNRECOGNIZED_NAME")
	expectCode(t, do(t, server, http.MethodPost, "/api/measures/parse", nil),
		http.StatusUnprocessableEntity, "UNRECOGNIZED_NAME")
}

func TestRegistryAndAlienationFunctions(t *testing.T) {
	server := newTestServer(t, nil)

	rr := do(t, server, http.MethodGet, "/api/measures/registry", nil)
	expectCode(t, rr, http.StatusOK, "")
	reg := decode[map[string][]any](t, rr)
	if len(reg["kinds"]) != len(measure.Registry()) {
		t.Fatalf("expected %d kinds, got %d", len(measure.Registry()), len(reg["kinds"]))
	}

	rr = do(t, server, http.MethodGet, "/api/measures/alienation-functions", nil)
	expectCode(t, rr, http.StatusOK, "")
	fns := decode[map[string][]string](t, rr)
	if strings.Join(fns["functions"], ",") != "d,d^2" {
		t.Fatalf("unexpected functions %v", fns)
	}
}

func TestTableLifecycle(t *testing.T) {
	server := newTestServer(t, nil)

	expectCode(t, do(t, server, http.MethodPost, "/api/tables", map[string]string{"name": "  "}), http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	rr := do(t, server, http.MethodPost, "/api/tables", map[string]string{"name": "Mine"})
	expectCode(t, rr, http.StatusCreated, "")
	table := decode[store.Table](t, rr)
	if table.ID == "" || table.Name != "Mine" {
		t.Fatalf("unexpected table %+v", table)
	}

	base := "/api/tables/" + table.ID
	expectCode(t, do(t, server, http.MethodPost, base+"/distributions", map[string]string{"distributionId": "nope"}),
		http.StatusNotFound, "DISTRIBUTION_NOT_FOUND")

	rr = do(t, server, http.MethodPost, base+"/distributions", map[string]string{"distributionId": "builtin-uniform"})
	expectCode(t, rr, http.StatusOK, "")
	if decode[map[string]bool](t, rr)["added"] != true {
		t.Fatal("expected first add to report added")
	}
	rr = do(t, server, http.MethodPost, base+"/distributions", map[string]string{"distributionId": "builtin-uniform"})
	if decode[map[string]bool](t, rr)["added"] != false {
		t.Fatal("expected second add to report not added")
	}
	do(t, server, http.MethodPost, base+"/distributions", map[string]string{"distributionId": "builtin-consensus"})

	rr = do(t, server, http.MethodPost, base+"/reorder", map[string]any{"kind": "distribution", "from": 1, "to": 0})
	expectCode(t, rr, http.StatusOK, "")
	reordered := decode[store.Table](t, rr)
	if strings.Join(reordered.DistributionIDs, ",") != "builtin-consensus,builtin-uniform" {
		t.Fatalf("unexpected order %v", reordered.DistributionIDs)
	}
	expectCode(t, do(t, server, http.MethodPost, base+"/reorder", map[string]any{"kind": "distribution", "from": 0, "to": 7}),
		http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	expectCode(t, do(t, server, http.MethodPost, base+"/reorder", map[string]any{"kind": "column", "from": 0, "to": 1}),
		http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	expectCode(t, do(t, server, http.MethodDelete, base+"/distributions/builtin-uniform", nil), http.StatusOK, "")
	expectCode(t, do(t, server, http.MethodDelete, base, nil), http.StatusOK, "")
	expectCode(t, do(t, server, http.MethodDelete, base, nil), http.StatusNotFound, "TABLE_NOT_FOUND")
}

func TestDefaultTableIsReadOnly(t *testing.T) {
	server := newTestServer(t, nil)
	base := "/api/tables/" + store.DefaultTableID

	expectCode(t, do(t, server, http.MethodDelete, base, nil), http.StatusConflict, "READ_ONLY_TABLE")
	expectCode(t, do(t, server, http.MethodDelete, base+"/distributions/builtin-uniform", nil), http.StatusConflict, "READ_ONLY_TABLE")
	expectCode(t, do(t, server, http.MethodPost, base+"/distributions", map[string]string{"distributionId": "builtin-uniform"}),
		http.StatusConflict, "READ_ONLY_TABLE")
	expectCode(t, do(t, server, http.MethodPost, base+"/reorder", map[string]any{"kind": "measure", "from": 0, "to": 1}),
		http.StatusOK, "")
}

func TestDefaultTableViewBackfills(t *testing.T) {
	server := newTestServer(t, nil)

	rr := do(t, server, http.MethodGet, "/api/tables/"+store.DefaultTableID+"/view", nil)
	expectCode(t, rr, http.StatusOK, "")
	body := decode[struct {
		View struct {
			Columns []map[string]string `json:"columns"`
			Rows    []struct {
				Measure string `json:"measure"`
				Cells   []struct {
					State string `json:"state"`
				} `json:"cells"`
			} `json:"rows"`
		} `json:"view"`
		Backfill struct {
			Requested []string `json:"requested"`
		} `json:"backfill"`
	}](t, rr)

	if len(body.Backfill.Requested) != len(body.View.Columns) || len(body.View.Columns) == 0 {
		t.Fatalf("expected every reference distribution to be backfilled, got %v", body.Backfill.Requested)
	}
	for _, row := range body.View.Rows {
		want := "value"
		if row.Measure == "BiPol" {
			want = "error"
		}
		for _, cell := range row.Cells {
			if cell.State != want {
				t.Fatalf("row %s: expected %s, got %s", row.Measure, want, cell.State)
			}
		}
	}

	expectCode(t, do(t, server, http.MethodGet, "/api/tables/missing/view", nil), http.StatusNotFound, "TABLE_NOT_FOUND")
}

func TestCalculatorEditing(t *testing.T) {
	server := newTestServer(t, nil)

	rr := do(t, server, http.MethodGet, "/api/calculator", nil)
	expectCode(t, rr, http.StatusOK, "")

	expectCode(t, do(t, server, http.MethodPut, "/api/calculator/weights/0", map[string]string{"value": "abc"}),
		http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	expectCode(t, do(t, server, http.MethodPut, "/api/calculator/weights/x", map[string]string{"value": "1"}),
		http.StatusBadRequest, "INVALID_INDEX")
	expectCode(t, do(t, server, http.MethodPut, "/api/calculator/weights/0", map[string]string{"value": "0.6"}),
		http.StatusOK, "")

	expectCode(t, do(t, server, http.MethodDelete, "/api/calculator/points/0", nil), http.StatusConflict, "MIN_POINTS")
	rr = do(t, server, http.MethodPost, "/api/calculator/points", nil)
	expectCode(t, rr, http.StatusOK, "")
	snap := decode[struct {
		Weights []float64 `json:"weights"`
		X       []float64 `json:"x"`
	}](t, rr)
	if len(snap.Weights) != 6 || snap.Weights[0] != 0.6 || snap.Weights[5] != 0 || len(snap.X) != 6 {
		t.Fatalf("unexpected calculator %+v", snap)
	}
	expectCode(t, do(t, server, http.MethodDelete, "/api/calculator/points/5", nil), http.StatusOK, "")

	expectCode(t, do(t, server, http.MethodPut, "/api/calculator", map[string]any{"weights": []float64{1, 2}}),
		http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	expectCode(t, do(t, server, http.MethodPut, "/api/calculator", map[string]any{"weights": []float64{1, 0, 0, 0, 1}}),
		http.StatusOK, "")
}

func TestCalculatorSaveAndExport(t *testing.T) {
	server := newTestServer(t, nil)
	waitForResults(t, server)

	expectCode(t, do(t, server, http.MethodPost, "/api/calculator/save", map[string]any{}),
		http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	rr := do(t, server, http.MethodPost, "/api/calculator/save", map[string]any{"name": "Mine", "newTableName": "Saved"})
	expectCode(t, rr, http.StatusOK, "")
	outcome := decode[struct {
		Created        bool   `json:"created"`
		DistributionID string `json:"distributionId"`
		NewTableID     string `json:"newTableId"`
	}](t, rr)
	if !outcome.Created || outcome.NewTableID == "" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	rr = do(t, server, http.MethodPost, "/api/calculator/save", map[string]any{"name": "Again", "tableIds": []string{outcome.NewTableID}})
	expectCode(t, rr, http.StatusOK, "")
	second := decode[struct {
		Created bool              `json:"created"`
		Merged  map[string]string `json:"merged"`
	}](t, rr)
	if second.Created || second.Merged[outcome.NewTableID] != outcome.DistributionID {
		t.Fatalf("expected merge into existing member, got %+v", second)
	}

	rr = do(t, server, http.MethodGet, "/api/export.xlsx", nil)
	expectCode(t, rr, http.StatusOK, "")
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "polarization-measures.xlsx") {
		t.Fatalf("unexpected disposition %q", rr.Header().Get("Content-Disposition"))
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")) {
		t.Fatal("expected a zip container")
	}

	expectCode(t, do(t, server, http.MethodPost, "/api/exports", nil), http.StatusNotImplemented, "UPLOAD_DISABLED")
}

func TestCalculatorSaveBeforeResults(t *testing.T) {
	server := newTestServerWithConfig(t, config.Config{Debounce: time.Hour}, nil)

	expectCode(t, do(t, server, http.MethodPost, "/api/calculator/save", map[string]any{"name": "Early", "newTableName": "T"}),
		http.StatusConflict, "NOT_READY")
	if len(server.service.State().Tables) != 1 {
		t.Fatal("a refused save must not create tables")
	}
}
