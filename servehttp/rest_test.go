package servehttp_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"shopfloor/bizerror"
	"shopfloor/config"
	"shopfloor/domain"
	"shopfloor/domain/completion"
	"shopfloor/domain/fillwork"
	"shopfloor/domain/onsite"
	"shopfloor/domain/transfer"
	"shopfloor/erpsync"
	"shopfloor/servehttp"
	"shopfloor/testinfra"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	. "github.com/onsi/gomega"
)

type fakeFillWorks struct {
	submitted *fillwork.Submission
	decidedID types.ID
	splitBy   string
	err       error
}

func (f *fakeFillWorks) Submit(ctx context.Context, s *fillwork.Submission) (*domain.FillWork, error) {
	f.submitted = s
	if f.err != nil {
		return nil, f.err
	}
	return &domain.FillWork{ID: 100, Operator: s.Operator, ApprovalStatus: domain.ApprovalPending}, nil
}

func (f *fakeFillWorks) Update(ctx context.Context, id types.ID, s *fillwork.Submission) (*domain.FillWork, error) {
	return &domain.FillWork{ID: id, Operator: s.Operator}, f.err
}

func (f *fakeFillWorks) Decide(ctx context.Context, id types.ID, d *fillwork.Decision) (*domain.FillWork, error) {
	f.decidedID = id
	return &domain.FillWork{ID: id, ApprovalStatus: domain.ApprovalApproved, Approver: d.Approver}, f.err
}

func (f *fakeFillWorks) SubmitSplit(ctx context.Context, split *fillwork.SplitSubmission, actor string) (*fillwork.SplitResult, error) {
	f.splitBy = actor
	return &fillwork.SplitResult{}, f.err
}

type fakeOnsite struct {
	reported *onsite.Event
}

func (f *fakeOnsite) Report(ctx context.Context, e *onsite.Event) (*domain.OnsiteReport, error) {
	f.reported = e
	return &domain.OnsiteReport{ID: 7, ProcessName: e.ProcessName, EventType: domain.OnsiteEventType(e.EventType), Instance: 1}, nil
}

type fakeWorkOrders struct {
	key    domain.WorkOrderKey
	method domain.CompletionMethod
	again  bool
}

func (f *fakeWorkOrders) CheckByKey(ctx context.Context, key domain.WorkOrderKey, method domain.CompletionMethod) (*completion.Result, error) {
	f.key, f.method = key, method
	return &completion.Result{Key: key, ReportCompleted: true, OverallCompleted: true, ChosenMethod: domain.CompletionByReport}, nil
}

func (f *fakeWorkOrders) TransferByKey(ctx context.Context, key domain.WorkOrderKey, method domain.CompletionMethod) (*transfer.Result, error) {
	f.key, f.method = key, method
	return &transfer.Result{Key: key, CompletedWorkOrderID: 9, Method: method, AlreadyTransferred: f.again}, nil
}

type fakeSync struct {
	all    int
	tenant string
}

func (f *fakeSync) SyncTenant(ctx context.Context, tenant config.Tenant, opts erpsync.Options) erpsync.TenantResult {
	f.tenant = tenant.Code
	return erpsync.TenantResult{Tenant: tenant.Code, Status: erpsync.StatusError, ErrorMsg: "source down"}
}

func (f *fakeSync) SyncAll(ctx context.Context, tenants []config.Tenant, opts erpsync.Options) []erpsync.TenantResult {
	f.all++
	results := []erpsync.TenantResult{}
	for _, t := range tenants {
		results = append(results, erpsync.TenantResult{Tenant: t.Code, Status: erpsync.StatusSuccess, Fetched: opts.Limit})
	}
	return results
}

func (f *fakeSync) States() []erpsync.TenantState {
	return []erpsync.TenantState{{Tenant: "A", Phase: erpsync.PhaseIdle}}
}

func newEngine() (*gin.Engine, *fakeFillWorks, *fakeOnsite, *fakeWorkOrders, *fakeSync) {
	gin.SetMode(gin.TestMode)
	fills, site, orders, sync := &fakeFillWorks{}, &fakeOnsite{}, &fakeWorkOrders{}, &fakeSync{}
	engine := servehttp.NewEngine(&servehttp.Services{
		FillWorks: fills, Onsite: site, Completion: orders, Transfer: orders, ErpSync: sync,
		Tenants: func() []config.Tenant { return []config.Tenant{{Code: "A"}, {Code: "B"}} },
	})
	return engine, fills, site, orders, sync
}

func TestFillWorksRestAPI(t *testing.T) {
	RegisterTestingT(t)
	engine, fills, _, _, _ := newEngine()

	t.Run("should submit fill work", func(t *testing.T) {
		w := testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodPost, servehttp.PathFillWorks,
			`{"companyCode":"A","operator":"O1","orderNumber":"331-1","productId":"P","processName":"出貨包裝",
			"workDate":"2025-01-05","startTime":"08:00","endTime":"12:00","workQuantity":100}`), engine)
		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(w.Body.String()).To(ContainSubstring(`"approvalStatus":"pending"`))
		Expect(fills.submitted.WorkQuantity).To(Equal(int64(100)))
		Expect(fills.submitted.EndTime).To(Equal("12:00"))
	})

	t.Run("should respond validation errors with their kind", func(t *testing.T) {
		fills.err = bizerror.NewValidationError(bizerror.DurationExceeded, "end_time", "too long")
		defer func() { fills.err = nil }()
		w := testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodPost, servehttp.PathFillWorks, `{"operator":"O1"}`), engine)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(w.Body.String()).To(MatchJSON(`{"code":"validation.duration-exceeded","message":"too long","data":{"field":"end_time"}}`))
	})

	t.Run("should reject malformed bodies", func(t *testing.T) {
		w := testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodPost, servehttp.PathFillWorks, `{"operator":`), engine)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	t.Run("should bind decisions strictly", func(t *testing.T) {
		w := testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodPost, servehttp.PathFillWorks+"/12/decisions",
			`{"decision":"maybe","approver":"lead"}`), engine)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(w.Body.String()).To(ContainSubstring(`"code":"common.bad_param"`))

		w = testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodPost, servehttp.PathFillWorks+"/12/decisions",
			`{"decision":"approve","approver":"lead"}`), engine)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(fills.decidedID).To(Equal(types.ID(12)))
	})

	t.Run("should map state errors to conflict", func(t *testing.T) {
		fills.err = &bizerror.StateError{Entity: domain.KindFillWork, Key: "12", State: "approved", Event: "update"}
		defer func() { fills.err = nil }()
		w := testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodPut, servehttp.PathFillWorks+"/12", `{"operator":"O1"}`), engine)
		Expect(w.Code).To(Equal(http.StatusConflict))
	})

	t.Run("should reject invalid ids", func(t *testing.T) {
		w := testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodPut, servehttp.PathFillWorks+"/abc", `{}`), engine)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	t.Run("should take split actor from header", func(t *testing.T) {
		req := testinfra.NewJSONRequest(http.MethodPost, servehttp.PathFillWorkSplits, `{"operator":"O1","rows":[]}`)
		req.Header.Set("X-Actor", "lead")
		w := testinfra.ExecuteRequest(req, engine)
		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(fills.splitBy).To(Equal("lead"))
	})
}

func TestOnsiteRestAPI(t *testing.T) {
	RegisterTestingT(t)
	engine, _, site, _, _ := newEngine()

	w := testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodPost, servehttp.PathOnsiteEvents,
		`{"workOrderKey":"A/331-1/P","processName":"SMT","eventType":"stop","operator":"O1"}`), engine)
	Expect(w.Code).To(Equal(http.StatusBadRequest))

	w = testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodPost, servehttp.PathOnsiteEvents,
		`{"workOrderKey":"A/331-1/P","processName":"SMT","eventType":"start","operator":"O1"}`), engine)
	Expect(w.Code).To(Equal(http.StatusCreated))
	Expect(site.reported.WorkOrderKey).To(Equal("A/331-1/P"))
}

func TestWorkOrdersRestAPI(t *testing.T) {
	RegisterTestingT(t)
	engine, _, _, orders, _ := newEngine()

	t.Run("should check completion by encoded key", func(t *testing.T) {
		w := testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodGet, servehttp.PathWorkOrders+"/A%2F331-1%2FP-A/completion", ""), engine)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(orders.key).To(Equal(domain.WorkOrderKey{CompanyCode: "A", OrderNumber: "331-1", ProductCode: "P-A"}))
		Expect(orders.method).To(Equal(domain.CompletionByBoth))
		Expect(w.Body.String()).To(ContainSubstring(`"chosenMethod":"report"`))
	})

	t.Run("should reject unknown method and malformed key", func(t *testing.T) {
		w := testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodGet, servehttp.PathWorkOrders+"/A%2F331-1%2FP-A/completion?method=guess", ""), engine)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		w = testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodGet, servehttp.PathWorkOrders+"/A-331/completion", ""), engine)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	t.Run("should transfer and report repeated transfers", func(t *testing.T) {
		w := testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodPost, servehttp.PathWorkOrders+"/A%2F331-1%2FP-A/transfers?method=process", ""), engine)
		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(orders.method).To(Equal(domain.CompletionByProcess))

		orders.again = true
		w = testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodPost, servehttp.PathWorkOrders+"/A%2F331-1%2FP-A/transfers", ""), engine)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"alreadyTransferred":true`))
	})
}

func TestErpSyncRestAPI(t *testing.T) {
	RegisterTestingT(t)
	engine, _, _, _, sync := newEngine()

	w := testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodPost, servehttp.PathErpSyncRequests, ""), engine)
	Expect(w.Code).To(Equal(http.StatusOK))
	Expect(sync.all).To(Equal(1))
	Expect(w.Body.String()).To(ContainSubstring(`"exitCode":0`))

	w = testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodPost, servehttp.PathErpSyncRequests, `{"tenant":"B","limit":5}`), engine)
	Expect(w.Code).To(Equal(http.StatusOK))
	Expect(sync.tenant).To(Equal("B"))
	Expect(w.Body.String()).To(ContainSubstring(`"exitCode":2`))

	w = testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodPost, servehttp.PathErpSyncRequests, `{"tenant":"Z"}`), engine)
	Expect(w.Code).To(Equal(http.StatusBadRequest))

	w = testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodGet, servehttp.PathErpSyncStates, ""), engine)
	Expect(w.Code).To(Equal(http.StatusOK))
	Expect(w.Body.String()).To(ContainSubstring(`"tenant":"A"`))
}

func TestAllocationsRestAPI(t *testing.T) {
	RegisterTestingT(t)
	engine, _, _, _, _ := newEngine()

	w := testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodPost, servehttp.PathAllocations,
		`{"rows":[{"workHours":1},{"workHours":3}],"totalQuantity":100,"policy":"time","actual":[30,70]}`), engine)
	Expect(w.Code).To(Equal(http.StatusOK))
	Expect(w.Body.String()).To(ContainSubstring(`"quantities":[25,75]`))
	Expect(w.Body.String()).To(ContainSubstring(`"maxAbsError":5`))

	w = testinfra.ExecuteRequest(testinfra.NewJSONRequest(http.MethodPost, servehttp.PathAllocations, `{"rows":[],"totalQuantity":1}`), engine)
	Expect(w.Code).To(Equal(http.StatusBadRequest))
}

func TestServe(t *testing.T) {
	RegisterTestingT(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- servehttp.Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), 0) }()
	cancel()
	Eventually(done).Should(Receive(BeNil()))

	err := servehttp.Serve(context.Background(), "bad-address", http.NotFoundHandler(), 0)
	Expect(err).ToNot(BeNil())
	Expect(errors.Is(err, context.Canceled)).To(BeFalse())
}
