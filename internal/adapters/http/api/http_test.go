package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ghpulse/internal/adapters/http/api"
	"github.com/okian/ghpulse/internal/adapters/repository"
	service "github.com/okian/ghpulse/internal/app"
	"github.com/okian/ghpulse/internal/domain/canonical"
	"github.com/okian/ghpulse/internal/domain/silver"
	"github.com/okian/ghpulse/internal/domain/types"
	"github.com/okian/ghpulse/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type mockDependencies struct {
	runErr    error
	removeErr error
	bundleErr error

	gotAccounts []string
	gotWindow   silver.Window
	activities  map[string][]canonical.ActivityCounter
}

func (m *mockDependencies) Run(ctx context.Context, accounts []string) (types.PipelineResult, error) {
	m.gotAccounts = accounts
	if m.runErr != nil {
		return types.PipelineResult{}, m.runErr
	}
	if len(accounts) == 0 {
		return types.PipelineResult{}, fmt.Errorf("%w: no accounts", service.ErrInvalidInput)
	}
	if _, ok := ctx.Deadline(); !ok {
		return types.PipelineResult{}, errors.New("run without deadline")
	}
	return types.PipelineResult{RunID: "run-1", Accounts: accounts, ReposFailed: []string{}, AccountsFailed: []string{}}, nil
}

func (m *mockDependencies) RemoveAccounts(_ context.Context, accounts []string) (types.RemovalResult, error) {
	m.gotAccounts = accounts
	if m.removeErr != nil {
		return types.RemovalResult{}, m.removeErr
	}
	return types.RemovalResult{Removed: accounts, NotFound: []string{}, Failed: []string{}}, nil
}

func (m *mockDependencies) Bundle(_ context.Context, w silver.Window) (canonical.Bundle, error) {
	m.gotWindow = w
	if m.bundleErr != nil {
		return canonical.Bundle{}, m.bundleErr
	}
	return canonical.Bundle{Issues: []canonical.Issue{{IssueID: "1"}}}, nil
}

func (m *mockDependencies) Activity(_ context.Context, userID string) ([]canonical.ActivityCounter, error) {
	return m.activities[userID], nil
}

type mockStatsProvider struct {
	stats types.Stats
}

func (m *mockStatsProvider) GetStats(context.Context) types.Stats {
	return m.stats
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }

func newMux(deps api.Dependencies, pinger api.Pinger) *http.ServeMux {
	stats := &mockStatsProvider{stats: types.Stats{Raw: repository.Stats{Events: 3}, Workers: 4}}
	mux := http.NewServeMux()
	api.NewServer(deps, stats, pinger, 100, time.Minute).Register(mux)
	return mux
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given a new API server", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, &mockPinger{})

		Convey("Then health serves metrics", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then metrics are exposed", func() {
			do(mux, http.MethodGet, "/stats", "")
			w := do(mux, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})

		Convey("Then stats are encoded as JSON", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)

			var st types.Stats
			So(json.Unmarshal(w.Body.Bytes(), &st), ShouldBeNil)
			So(st.Raw.Events, ShouldEqual, 3)
			So(st.Workers, ShouldEqual, 4)
		})

		Convey("Then wrong methods are not found", func() {
			So(do(mux, http.MethodGet, "/runs", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodPost, "/stats", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodPost, "/bundle", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("Given an unreachable store", t, func() {
		mux := newMux(&mockDependencies{}, &mockPinger{err: errors.New("connection refused")})

		Convey("Then health reports unavailable", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(w.Body.String(), ShouldContainSubstring, "store_unavailable")
		})
	})
}

func TestRunsHandler(t *testing.T) {
	Convey("Given the runs endpoint", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, nil)

		Convey("When accounts are posted", func() {
			w := do(mux, http.MethodPost, "/runs", `{"accounts":["alice","bob"]}`)

			Convey("Then the run result is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.gotAccounts, ShouldResemble, []string{"alice", "bob"})

				var res types.PipelineResult
				So(json.Unmarshal(w.Body.Bytes(), &res), ShouldBeNil)
				So(res.RunID, ShouldEqual, "run-1")
			})
		})

		Convey("When the account list is empty", func() {
			w := do(mux, http.MethodPost, "/runs", `{"accounts":[]}`)

			Convey("Then the request is rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "bad_request")
			})
		})

		Convey("When the body is malformed", func() {
			So(do(mux, http.MethodPost, "/runs", `{"accounts":`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/runs", `{"users":["a"]}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the service is not started", func() {
			deps.runErr = service.ErrNotStarted
			So(do(mux, http.MethodPost, "/runs", `{"accounts":["a"]}`).Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When persisting fails", func() {
			deps.runErr = fmt.Errorf("%w: disk full", service.ErrPersist)
			w := do(mux, http.MethodPost, "/runs", `{"accounts":["a"]}`)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(w.Body.String(), ShouldContainSubstring, "disk full")
		})

		Convey("When the run times out", func() {
			deps.runErr = context.DeadlineExceeded
			So(do(mux, http.MethodPost, "/runs", `{"accounts":["a"]}`).Code, ShouldEqual, http.StatusGatewayTimeout)
		})
	})
}

func TestAccountsHandler(t *testing.T) {
	Convey("Given the removal endpoint", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, nil)

		Convey("When accounts are posted", func() {
			w := do(mux, http.MethodPost, "/accounts/remove", `{"accounts":["alice"]}`)

			Convey("Then the removal result is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"removed":["alice"]`)
			})
		})

		Convey("When the service rejects the input", func() {
			deps.removeErr = service.ErrInvalidInput
			So(do(mux, http.MethodPost, "/accounts/remove", `{"accounts":[]}`).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestBundleHandler(t *testing.T) {
	Convey("Given the bundle endpoint", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps, nil)

		Convey("When a window is given", func() {
			w := do(mux, http.MethodGet, "/bundle?since=2024-01-01T00:00:00Z&until=2024-01-02T00:00:00Z&limit=5", "")

			Convey("Then it is passed through", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.gotWindow.Since, ShouldEqual, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
				So(deps.gotWindow.Until, ShouldEqual, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
				So(deps.gotWindow.Limit, ShouldEqual, 5)
				So(w.Body.String(), ShouldContainSubstring, `"issueId":"1"`)
			})
		})

		Convey("When no limit is given", func() {
			do(mux, http.MethodGet, "/bundle", "")

			Convey("Then the maximum applies", func() {
				So(deps.gotWindow.Limit, ShouldEqual, 100)
				So(deps.gotWindow.Since.IsZero(), ShouldBeTrue)
			})
		})

		Convey("When the limit exceeds the maximum", func() {
			do(mux, http.MethodGet, "/bundle?limit=5000", "")
			So(deps.gotWindow.Limit, ShouldEqual, 100)
		})

		Convey("When the query is invalid", func() {
			So(do(mux, http.MethodGet, "/bundle?since=yesterday", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/bundle?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/bundle?since=2024-01-02T00:00:00Z&until=2024-01-01T00:00:00Z", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When building fails", func() {
			deps.bundleErr = context.Canceled
			So(do(mux, http.MethodGet, "/bundle", "").Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestActivityHandler(t *testing.T) {
	Convey("Given stored counters for one user", t, func() {
		deps := &mockDependencies{activities: map[string][]canonical.ActivityCounter{
			"11": {{UserID: "11", Day: "2024-01-07", RepoID: "77", ActivityType: canonical.ActivityIssue, Count: 2}},
		}}
		mux := newMux(deps, nil)

		Convey("Then the counters of that user are returned", func() {
			w := do(mux, http.MethodGet, "/activity/11", "")
			So(w.Code, ShouldEqual, http.StatusOK)

			var res types.ActivityResponse
			So(json.Unmarshal(w.Body.Bytes(), &res), ShouldBeNil)
			So(res.UserID, ShouldEqual, "11")
			So(res.Activities, ShouldHaveLength, 1)
			So(res.Activities[0].Count, ShouldEqual, 2)
		})

		Convey("Then an unknown user is not found", func() {
			So(do(mux, http.MethodGet, "/activity/99", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then a malformed path is rejected", func() {
			So(do(mux, http.MethodGet, "/activity/", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/activity/1/2", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given a wrapped handler error", t, func() {
		cause := errors.New("boom")
		err := api.WrapKind("api.op", api.ErrBadRequest, cause)

		Convey("Then both kind and cause are matchable", func() {
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: bad request: boom")
		})

		Convey("Then internal wrapping uses the internal kind", func() {
			So(errors.Is(api.Wrap("api.op", cause), api.ErrInternal), ShouldBeTrue)
			So(api.NewKind("api.op", api.ErrUnavailable).Error(), ShouldEqual, "api.op: service unavailable")
		})
	})
}
