package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/theirongolddev/costroll/internal/budget"
	"github.com/theirongolddev/costroll/internal/model"
	"github.com/theirongolddev/costroll/internal/money"
	"github.com/theirongolddev/costroll/internal/rollup"
	"github.com/theirongolddev/costroll/internal/store"
)

func newTestServer(t *testing.T, opts ...Option) (*Service, *httptest.Server) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "costroll.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	err = st.Update(ctx, func(tx *store.Tx) error {
		if err := tx.PutProject(ctx, model.Project{ID: "p1", Name: "Harbor Tower"}); err != nil {
			return err
		}
		for _, c := range []model.CostCode{{ID: "01-100", Title: "General Conditions"}, {ID: "03-1000", Title: "Concrete"}} {
			if err := tx.PutCostCode(ctx, c); err != nil {
				return err
			}
		}
		return tx.PutCostType(ctx, model.CostType{ID: "L", Code: "L", Description: "Labor"})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := New(Config{EventsBuffer: 10}, budget.NewService(st), rollup.NewEngine(rollup.FromStore(st), rollup.DefaultOptions()), opts...)
	ts := httptest.NewServer(svc.Handler())
	t.Cleanup(ts.Close)
	return svc, ts
}

func do(t *testing.T, ts *httptest.Server, method, path, actor, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s status = %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want)
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)
	resp := do(t, ts, http.MethodGet, "/healthz", "", "")
	expectStatus(t, resp, http.StatusOK)
}

func TestMergeAndRollup(t *testing.T) {
	_, ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/v1/projects/p1/budget/lines", "pm",
		`{"lines":[{"cost_code_id":"01-100","amount":"10000"},{"cost_code_id":"01-100","amount":2500.5}]}`)
	expectStatus(t, resp, http.StatusOK)
	res := decode[model.MergeResult](t, resp)
	if len(res.IDs) != 1 || !res.BatchTotal.Equal(money.MustParse("12500.50")) {
		t.Errorf("merge result = %+v", res)
	}

	resp = do(t, ts, http.MethodGet, "/v1/projects/p1/budget", "", "")
	expectStatus(t, resp, http.StatusOK)
	r := decode[model.Rollup](t, resp)
	if len(r.Lines) != 1 {
		t.Fatalf("len(Lines) = %d, want 1", len(r.Lines))
	}
	if !r.GrandTotals.RevisedBudget.Equal(money.MustParse("12500.50")) {
		t.Errorf("revised = %s, want 12500.50", r.GrandTotals.RevisedBudget)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	_, ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/v1/projects/p1/budget/lines", "pm", `{"lines":[{"cost_code_id":"zz","amount":"1"}]}`)
	expectStatus(t, resp, http.StatusBadRequest)
	if body := decode[errorBody](t, resp); body.Code != model.CodeInvalidReference {
		t.Errorf("code = %s, want %s", body.Code, model.CodeInvalidReference)
	}

	resp = do(t, ts, http.MethodPost, "/v1/projects/p1/budget/lines", "", `{"lines":[{"cost_code_id":"01-100","amount":"1"}]}`)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = do(t, ts, http.MethodPut, "/v1/projects/p1/budget/lock", "pm", `{"locked":true}`)
	expectStatus(t, resp, http.StatusOK)
	st := decode[model.BudgetLockState](t, resp)
	if !st.Locked || st.Version != 1 {
		t.Errorf("lock state = %+v", st)
	}

	resp = do(t, ts, http.MethodPut, "/v1/projects/p1/budget/lock", "pm", `{"locked":true}`)
	expectStatus(t, resp, http.StatusConflict)
	if body := decode[errorBody](t, resp); !body.Retryable {
		t.Error("concurrent modification not marked retryable")
	}

	resp = do(t, ts, http.MethodPost, "/v1/projects/p1/budget/lines", "pm", `{"lines":[{"cost_code_id":"01-100","amount":"1"}]}`)
	expectStatus(t, resp, http.StatusLocked)

	resp = do(t, ts, http.MethodGet, "/v1/projects/p1/budget/lock/history", "", "")
	expectStatus(t, resp, http.StatusOK)
	if events := decode[[]model.LockEvent](t, resp); len(events) != 1 {
		t.Errorf("len(history) = %d, want 1", len(events))
	}

	resp = do(t, ts, http.MethodPost, "/v1/projects/p1/budget/modifications/missing/approve", "pm", "")
	expectStatus(t, resp, http.StatusNotFound)

	resp = do(t, ts, http.MethodGet, "/v1/projects/p1/budget/export?format=pdf", "", "")
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestAuthorizerDenies(t *testing.T) {
	deny := AuthorizerFunc(func(_ context.Context, actor, _ string, action Action) error {
		if action == ActionSetLock && actor != "cfo" {
			return ErrForbidden
		}
		return nil
	})
	_, ts := newTestServer(t, WithAuthorizer(deny))

	resp := do(t, ts, http.MethodPut, "/v1/projects/p1/budget/lock", "pm", `{"locked":true}`)
	expectStatus(t, resp, http.StatusForbidden)
	resp = do(t, ts, http.MethodPut, "/v1/projects/p1/budget/lock", "cfo", `{"locked":true}`)
	expectStatus(t, resp, http.StatusOK)
}

func TestModificationFlowChangesRollup(t *testing.T) {
	_, ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/v1/projects/p1/budget/lines", "pm",
		`{"lines":[{"cost_code_id":"01-100","amount":"1000"},{"cost_code_id":"03-1000","amount":"1000"}]}`)
	expectStatus(t, resp, http.StatusOK)

	resp = do(t, ts, http.MethodPost, "/v1/projects/p1/budget/modifications", "pm",
		`{"title":"shift","from_cost_code":"01-100","to_cost_code":"03-1000","amount":"250"}`)
	expectStatus(t, resp, http.StatusCreated)
	mod := decode[model.BudgetModification](t, resp)
	if mod.Number != "BM-0001" || mod.CreatedBy != "pm" {
		t.Errorf("modification = %+v", mod)
	}

	for _, action := range []string{"submit", "approve"} {
		resp = do(t, ts, http.MethodPost, "/v1/projects/p1/budget/modifications/"+mod.ID+"/"+action, "pm", "")
		expectStatus(t, resp, http.StatusOK)
	}
	resp = do(t, ts, http.MethodPost, "/v1/projects/p1/budget/modifications/"+mod.ID+"/submit", "pm", "")
	expectStatus(t, resp, http.StatusConflict)

	resp = do(t, ts, http.MethodGet, "/v1/projects/p1/budget", "", "")
	r := decode[model.Rollup](t, resp)
	for _, l := range r.Lines {
		want := "750"
		if l.CostCodeID == "03-1000" {
			want = "1250"
		}
		if !l.RevisedBudget.Equal(money.MustParse(want)) {
			t.Errorf("%s revised = %s, want %s", l.CostCodeID, l.RevisedBudget, want)
		}
	}
}

func TestExportCSV(t *testing.T) {
	_, ts := newTestServer(t)
	resp := do(t, ts, http.MethodPost, "/v1/projects/p1/budget/lines", "pm", `{"lines":[{"cost_code_id":"01-100","amount":"10000"}]}`)
	expectStatus(t, resp, http.StatusOK)

	resp = do(t, ts, http.MethodGet, "/v1/projects/p1/budget/export?format=csv", "", "")
	expectStatus(t, resp, http.StatusOK)
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "Harbor Tower-Budget-") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	records, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	last := records[len(records)-1]
	if last[0] != "Grand Total" || last[4] != "10000.00" {
		t.Errorf("summary row = %v", last)
	}
}

func TestStreamPublishesRollupDelta(t *testing.T) {
	_, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/projects/p1/budget/stream", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	events := bufio.NewScanner(resp.Body)
	next := func() string {
		for events.Scan() {
			if line := events.Text(); strings.HasPrefix(line, "event: ") {
				return strings.TrimPrefix(line, "event: ")
			}
		}
		t.Fatalf("stream ended: %v", events.Err())
		return ""
	}

	if ev := next(); ev != "snapshot" {
		t.Fatalf("first event = %q, want snapshot", ev)
	}

	merge := do(t, ts, http.MethodPost, "/v1/projects/p1/budget/lines", "pm", `{"lines":[{"cost_code_id":"01-100","amount":"500"}]}`)
	expectStatus(t, merge, http.StatusOK)

	if ev := next(); ev != "rollup_delta" {
		t.Fatalf("second event = %q, want rollup_delta", ev)
	}
}

func TestDiffSnapshots(t *testing.T) {
	prev := Snapshot{RevisedBudget: money.New(1000), JobToDateCost: money.New(100)}
	curr := Snapshot{RevisedBudget: money.New(1250), JobToDateCost: money.New(100), CommittedCosts: money.MustParse("0.01")}

	delta := diffSnapshots(prev, curr)
	if !delta.RevisedBudget.Equal(money.New(250)) {
		t.Fatalf("RevisedBudget delta = %s, want 250.00", delta.RevisedBudget)
	}
	if !delta.JobToDateCost.IsZero() {
		t.Fatalf("JobToDateCost delta = %s, want 0", delta.JobToDateCost)
	}
	if delta.isZero() {
		t.Fatal("delta unexpectedly reported as zero")
	}
	if !diffSnapshots(curr, curr).isZero() {
		t.Fatal("identical snapshots produced a non-zero delta")
	}
}

func TestPublishEventRingBuffer(t *testing.T) {
	s := New(Config{EventsBuffer: 2}, nil, nil)

	s.publishEvent(Event{ID: 1})
	s.publishEvent(Event{ID: 2})
	s.publishEvent(Event{ID: 3})

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) != 2 {
		t.Fatalf("events len = %d, want 2", len(s.events))
	}
	if s.events[0].ID != 2 || s.events[1].ID != 3 {
		t.Fatalf("events ring contains IDs [%d, %d], want [2, 3]", s.events[0].ID, s.events[1].ID)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.ErrInvalidAmount, http.StatusBadRequest},
		{model.ErrBudgetLocked, http.StatusLocked},
		{model.ErrInvalidTransition, http.StatusConflict},
		{model.ErrSourceUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestDeleteLine(t *testing.T) {
	_, ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/v1/projects/p1/budget/lines", "pm",
		`{"lines":[{"cost_code_id":"01-100","amount":"1000"},{"cost_code_id":"03-1000","amount":"400"}]}`)
	expectStatus(t, resp, http.StatusOK)
	ids := decode[model.MergeResult](t, resp).IDs

	resp = do(t, ts, http.MethodDelete, "/v1/projects/p1/budget/lines/"+ids[0], "pm", "")
	expectStatus(t, resp, http.StatusOK)
	if p := decode[model.Project](t, resp); !p.CurrentBudget.Equal(money.New(400)) {
		t.Errorf("current budget = %s, want 400.00", p.CurrentBudget)
	}

	resp = do(t, ts, http.MethodDelete, "/v1/projects/p1/budget/lines/"+ids[0], "pm", "")
	expectStatus(t, resp, http.StatusNotFound)

	resp = do(t, ts, http.MethodPut, "/v1/projects/p1/budget/lock", "pm", `{"locked":true}`)
	expectStatus(t, resp, http.StatusOK)
	resp = do(t, ts, http.MethodDelete, "/v1/projects/p1/budget/lines/"+ids[1], "pm", "")
	expectStatus(t, resp, http.StatusLocked)
}

func TestImportMultipart(t *testing.T) {
	_, ts := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "budget.csv")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("Cost Code,Cost Type,Description,Budget Amount\n01-100,L,Supervision,900\n03-1000,L,,\n"))
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/projects/p1/budget/import", &body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(ActorHeader, "pm")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	expectStatus(t, resp, http.StatusOK)

	res := decode[model.ImportResult](t, resp)
	if res.Imported != 2 || len(res.Warnings) != 1 || !res.Merge.CurrentBudget.Equal(money.New(900)) {
		t.Errorf("import result = %+v", res)
	}
}

func TestImportRawBody(t *testing.T) {
	_, ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/v1/projects/p1/budget/import?format=csv", "pm", "Cost Code,Cost Type,Amount\n01-100,L,250\n")
	expectStatus(t, resp, http.StatusOK)

	resp = do(t, ts, http.MethodPost, "/v1/projects/p1/budget/import?format=csv", "pm", "Cost Code,Amount\n01-100,250\n")
	expectStatus(t, resp, http.StatusBadRequest)

	resp = do(t, ts, http.MethodPost, "/v1/projects/p1/budget/import", "pm", "Cost Code,Cost Type\n01-100,L\n")
	expectStatus(t, resp, http.StatusBadRequest)

	resp = do(t, ts, http.MethodPut, "/v1/projects/p1/budget/lock", "pm", `{"locked":true}`)
	expectStatus(t, resp, http.StatusOK)
	resp = do(t, ts, http.MethodPost, "/v1/projects/p1/budget/import?format=csv", "pm", "Cost Code,Cost Type,Amount\n01-100,L,250\n")
	expectStatus(t, resp, http.StatusLocked)
}

func TestCostCodeDetails(t *testing.T) {
	_, ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/v1/projects/p1/budget/lines", "pm",
		`{"lines":[{"cost_code_id":"01-100","amount":"1000"},{"cost_code_id":"01-100","cost_type_id":"L","amount":"200"}]}`)
	expectStatus(t, resp, http.StatusOK)

	resp = do(t, ts, http.MethodGet, "/v1/projects/p1/budget/details/01-100", "", "")
	expectStatus(t, resp, http.StatusOK)
	d := decode[model.CostCodeDetails](t, resp)
	if d.CostCodeTitle != "General Conditions" || len(d.Items) != 2 {
		t.Fatalf("details = %+v, want two original budget rows", d)
	}
	if got := d.Subtotals[model.DetailOriginalBudget]; !got.Equal(money.New(1200)) {
		t.Errorf("original subtotal = %s, want 1200.00", got)
	}

	resp = do(t, ts, http.MethodGet, "/v1/projects/p1/budget/details/01-100?best_effort=maybe", "", "")
	expectStatus(t, resp, http.StatusBadRequest)
}
