package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/starboard/internal/adapters/http/api"
	"github.com/okian/starboard/internal/adapters/repository"
	service "github.com/okian/starboard/internal/app"
	"github.com/okian/starboard/internal/domain/model"
	"github.com/okian/starboard/internal/domain/types"
	"github.com/okian/starboard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// unavailable fails session-wide cell reads like a lost database.
type unavailable struct {
	repository.Store
}

func (unavailable) SessionCells(context.Context, string) ([]model.StarCell, error) {
	return nil, errors.New("database is locked")
}

// conflicted never wins a star commit.
type conflicted struct {
	repository.Store
}

func (conflicted) CommitStars(context.Context, time.Time, ...repository.Commit) ([]model.StarCell, error) {
	return nil, repository.ErrConflict
}

type harness struct {
	mux   *http.ServeMux
	store *repository.MemoryStore
	clock *movableClock
}

// movableClock reads t0 until moved.
type movableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movableClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newHarness(t *testing.T, wrap func(repository.Store) repository.Store) *harness {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore(ctx)
	t.Cleanup(func() { _ = store.Close() })

	must := func(err error) {
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(store.PutSession(ctx, model.Session{ID: "s1", Name: "Spring", Status: model.SessionOnline, CreatedAt: t0}))
	for i, id := range []string{"a", "b", "c"} {
		must(store.PutTeam(ctx, model.Team{ID: id, SessionID: "s1", Name: "Team " + id, DisplayOrder: i + 1}))
	}
	for i, id := range []string{"l1", "l2"} {
		must(store.PutLocation(ctx, model.Location{ID: id, SessionID: "s1", Name: "Loc " + id, DisplayOrder: i + 1}))
	}

	var backing repository.Store = store
	if wrap != nil {
		backing = wrap(store)
	}
	clock := &movableClock{now: t0}
	engine := service.New(backing,
		service.WithClock(clock.Now),
		service.WithLogger(logger.Nop()),
		service.WithConflictRetries(1),
	)
	mux := http.NewServeMux()
	api.NewServer(engine, engine, api.WithMaxLogLimit(20), api.WithMaxStandingsLimit(10)).Register(ctx, mux)
	return &harness{mux: mux, store: store, clock: clock}
}

func (h *harness) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.mux.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](w *httptest.ResponseRecorder) T {
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		panic(err)
	}
	return v
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func TestHealthAndStats(t *testing.T) {
	Convey("Given a registered server", t, func() {
		h := newHarness(t, nil)

		Convey("When probing health as JSON", func() {
			w := h.do(http.MethodGet, "/healthz", "")

			Convey("Then it should report ok", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
			})
		})

		Convey("When probing health as a Prometheus scraper", func() {
			h.do(http.MethodPost, "/stars", `{"team_id":"a","location_id":"l1","delta":1}`)
			w := h.do(http.MethodGet, "/healthz", "", "Accept", "text/plain")

			Convey("Then it should expose engine metrics", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "starboard_")
			})
		})

		Convey("When reading stats", func() {
			w := h.do(http.MethodGet, "/stats", "")

			Convey("Then the engine counters should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				stats := decodeBody[map[string]any](w)
				So(stats, ShouldContainKey, "deltasApplied")
				So(stats, ShouldContainKey, "conflictRetries")
			})
		})

		Convey("When calling an unknown route", func() {
			w := h.do(http.MethodGet, "/leaderboard", "")

			Convey("Then it should be not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When using the wrong method", func() {
			w := h.do(http.MethodGet, "/stars", "")

			Convey("Then the mux should refuse it", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}

func TestApplyDeltaEndpoint(t *testing.T) {
	Convey("Given a registered server", t, func() {
		h := newHarness(t, nil)

		Convey("When adding stars", func() {
			w := h.do(http.MethodPost, "/stars", `{"team_id":"a","location_id":"l1","delta":3}`, "X-Actor-ID", "judge")

			Convey("Then the result should carry the new stars and points", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				res := decodeBody[service.DeltaResult](w)
				So(res.Stars, ShouldEqual, 3.0)
				So(res.Change, ShouldEqual, 3.0)
				So(res.Points, ShouldEqual, 10)
			})

			Convey("Then the actor should come from the header", func() {
				logs := decodeBody[struct {
					Entries []struct {
						ActorID string `json:"actor_id"`
					} `json:"entries"`
				}](h.do(http.MethodGet, "/logs?session_id=s1", ""))
				So(logs.Entries, ShouldHaveLength, 1)
				So(logs.Entries[0].ActorID, ShouldEqual, "judge")
			})
		})

		Convey("When retrying with the same idempotency key", func() {
			body := `{"team_id":"a","location_id":"l1","delta":2}`
			first := h.do(http.MethodPost, "/stars", body, "Idempotency-Key", "req-1")
			second := h.do(http.MethodPost, "/stars", body, "Idempotency-Key", "req-1")

			Convey("Then the change should apply once", func() {
				So(first.Code, ShouldEqual, http.StatusOK)
				So(second.Code, ShouldEqual, http.StatusOK)
				So(decodeBody[service.DeltaResult](second).Duplicate, ShouldBeTrue)
				cell, err := h.store.Cell(context.Background(), model.CellKey{TeamID: "a", LocationID: "l1"})
				So(err, ShouldBeNil)
				So(cell.Stars, ShouldEqual, 2.0)
			})
		})

		Convey("When the delta is missing", func() {
			w := h.do(http.MethodPost, "/stars", `{"team_id":"a","location_id":"l1"}`)

			Convey("Then it should be a bad request naming the field", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				body := decodeBody[errorBody](w)
				So(body.Code, ShouldEqual, "bad_request")
				So(body.Message, ShouldContainSubstring, "delta")
			})
		})

		Convey("When the body has unknown fields", func() {
			w := h.do(http.MethodPost, "/stars", `{"team_id":"a","location_id":"l1","delta":1,"bonus":true}`)

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the cell does not exist", func() {
			w := h.do(http.MethodPost, "/stars", `{"team_id":"zz","location_id":"l1","delta":1}`)

			Convey("Then it should be not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decodeBody[errorBody](w).Code, ShouldEqual, "not_found")
			})
		})
	})

	Convey("Given a store that always loses the compare-and-set", t, func() {
		h := newHarness(t, func(s repository.Store) repository.Store { return conflicted{s} })

		Convey("When adding stars", func() {
			w := h.do(http.MethodPost, "/stars", `{"team_id":"a","location_id":"l1","delta":1}`)

			Convey("Then it should report a conflict", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decodeBody[errorBody](w).Code, ShouldEqual, "conflict")
			})
		})
	})
}

func TestEffectsEndpoints(t *testing.T) {
	Convey("Given a registered server", t, func() {
		h := newHarness(t, nil)

		Convey("When activating a team boost", func() {
			w := h.do(http.MethodPost, "/effects",
				`{"session_id":"s1","kind":"morale_boost","team_id":"a","value":2,"duration_minutes":5}`)

			Convey("Then the effect should be created and listed", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				created := decodeBody[map[string]any](w)
				So(created["kind"], ShouldEqual, "morale_boost")
				So(created["expires_at"], ShouldEqual, "2026-03-14T12:05:00Z")

				list := h.do(http.MethodGet, "/effects?session_id=s1&team_id=a", "")
				So(list.Code, ShouldEqual, http.StatusOK)
				So(decodeBody[[]map[string]any](list), ShouldHaveLength, 1)
			})

			Convey("Then it should be gone after the sweep passes its expiry", func() {
				h.clock.Set(t0.Add(5 * time.Minute))
				w := h.do(http.MethodPost, "/effects/sweep", `{"as_of":"2026-03-14T12:05:00Z"}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"closed":1`)

				list := h.do(http.MethodGet, "/effects?session_id=s1", "")
				So(decodeBody[[]map[string]any](list), ShouldBeEmpty)
			})

			Convey("Then a sweep dated in the future should leave it in force", func() {
				w := h.do(http.MethodPost, "/effects/sweep", `{"as_of":"2026-03-14T13:00:00Z"}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"closed":0`)

				list := h.do(http.MethodGet, "/effects?session_id=s1", "")
				So(decodeBody[[]map[string]any](list), ShouldHaveLength, 1)
			})

			Convey("Then it can be closed by id", func() {
				id := decodeBody[map[string]any](w)["id"].(string)
				closed := h.do(http.MethodPost, "/effects/"+id+"/close", "")
				So(closed.Code, ShouldEqual, http.StatusOK)
				So(decodeBody[map[string]any](closed)["closed_at"], ShouldNotBeNil)
			})
		})

		Convey("When sweeping without a body", func() {
			w := h.do(http.MethodPost, "/effects/sweep", "")

			Convey("Then it should sweep as of now", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"closed":0`)
			})
		})

		Convey("When an alliance names no partner", func() {
			w := h.do(http.MethodPost, "/effects", `{"session_id":"s1","kind":"alliance","team_id":"a","value":0.2}`)

			Convey("Then it should be an invalid scope", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeBody[errorBody](w).Code, ShouldEqual, "invalid_scope")
			})
		})

		Convey("When the kind is unknown", func() {
			w := h.do(http.MethodPost, "/effects", `{"session_id":"s1","kind":"frenzy"}`)

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When closing an unknown effect", func() {
			w := h.do(http.MethodPost, "/effects/nope/close", "")

			Convey("Then it should be not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When as_of is malformed", func() {
			w := h.do(http.MethodGet, "/effects?as_of=yesterday", "")

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestActivationEndpoints(t *testing.T) {
	Convey("Given a registered server", t, func() {
		h := newHarness(t, nil)

		Convey("When team a curses team b", func() {
			w := h.do(http.MethodPost, "/cards",
				`{"session_id":"s1","card":"efficiency_curse_10","activator_team_id":"a","target_team_id":"b"}`)

			Convey("Then the activation and its effect should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				body := decodeBody[struct {
					Activation struct {
						ID       string `json:"id"`
						Category string `json:"category"`
						Status   string `json:"status"`
					} `json:"activation"`
					Effects []struct {
						TeamID   string `json:"team_id"`
						SourceID string `json:"source_id"`
					} `json:"effects"`
				}](w)
				So(body.Activation.Category, ShouldEqual, "card")
				So(body.Activation.Status, ShouldEqual, "active")
				So(body.Effects, ShouldHaveLength, 1)
				So(body.Effects[0].TeamID, ShouldEqual, "b")
				So(body.Effects[0].SourceID, ShouldEqual, body.Activation.ID)

				Convey("And closing the activation should close its effect", func() {
					closed := h.do(http.MethodPost, "/activations/"+body.Activation.ID+"/close", "")
					So(closed.Code, ShouldEqual, http.StatusOK)
					So(closed.Body.String(), ShouldContainSubstring, `"status":"expired"`)
					So(decodeBody[[]map[string]any](h.do(http.MethodGet, "/effects?session_id=s1", "")), ShouldBeEmpty)
				})
			})
		})

		Convey("When a blocked team plays a card", func() {
			So(h.do(http.MethodPost, "/cards",
				`{"session_id":"s1","card":"skill_block","activator_team_id":"b","target_team_id":"a"}`).Code, ShouldEqual, http.StatusCreated)
			w := h.do(http.MethodPost, "/cards", `{"session_id":"s1","card":"morale_boost_5","activator_team_id":"a"}`)

			Convey("Then it should be forbidden", func() {
				So(w.Code, ShouldEqual, http.StatusForbidden)
				So(decodeBody[errorBody](w).Code, ShouldEqual, "skill_blocked")
			})
		})

		Convey("When gifting stars", func() {
			w := h.do(http.MethodPost, "/cards",
				`{"session_id":"s1","card":"star_gift_3","activator_team_id":"a","allocations":[{"team_id":"a","location_id":"l1","amount":2},{"team_id":"c","location_id":"l2","amount":1}]}`)

			Convey("Then both cells should grow", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				cells := decodeBody[[]types.CellView](h.do(http.MethodGet, "/locations/l1/cells", ""))
				So(cells, ShouldHaveLength, 3)
				So(cells[0].TeamID, ShouldEqual, "a")
				So(cells[0].Stars, ShouldEqual, 2.0)
			})
		})

		Convey("When an allocation has no amount", func() {
			w := h.do(http.MethodPost, "/cards",
				`{"session_id":"s1","card":"star_gift_3","activator_team_id":"a","allocations":[{"team_id":"a","location_id":"l1"}]}`)

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When triggering golden time", func() {
			w := h.do(http.MethodPost, "/events", `{"session_id":"s1","event":"golden_time"}`)

			Convey("Then a global doubling should be in force", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				res := decodeBody[service.DeltaResult](h.do(http.MethodPost, "/stars", `{"team_id":"c","location_id":"l2","delta":2}`))
				So(res.Change, ShouldEqual, 4.0)
			})
		})

		Convey("When an income event names no location", func() {
			w := h.do(http.MethodPost, "/events", `{"session_id":"s1","event":"income_decrease"}`)

			Convey("Then it should be an invalid scope", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeBody[errorBody](w).Code, ShouldEqual, "invalid_scope")
			})
		})
	})
}

func TestLocationAndReportEndpoints(t *testing.T) {
	Convey("Given a registered server with some stars", t, func() {
		h := newHarness(t, nil)
		for _, body := range []string{
			`{"team_id":"a","location_id":"l1","delta":5}`,
			`{"team_id":"b","location_id":"l1","delta":3}`,
			`{"team_id":"b","location_id":"l2","delta":1}`,
		} {
			So(h.do(http.MethodPost, "/stars", body).Code, ShouldEqual, http.StatusOK)
		}

		Convey("When recomputing a location", func() {
			w := h.do(http.MethodPost, "/locations/l1/recompute", "")

			Convey("Then it should succeed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"location_id":"l1"`)
			})
		})

		Convey("When recomputing an unknown location", func() {
			w := h.do(http.MethodPost, "/locations/nowhere/recompute", "")

			Convey("Then it should be not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When reading standings", func() {
			w := h.do(http.MethodGet, "/sessions/s1/standings", "")

			Convey("Then equal points should fall back to total stars", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				rows := decodeBody[[]types.Standing](w)
				So(rows, ShouldHaveLength, 3)
				So(rows[0].TeamID, ShouldEqual, "a")
				So(rows[0].Points, ShouldEqual, 19)
				So(rows[0].Rank, ShouldEqual, 1)
				So(rows[1].TeamID, ShouldEqual, "b")
				So(rows[1].Points, ShouldEqual, 19)
				So(rows[1].Rank, ShouldEqual, 2)
				So(rows[2].Points, ShouldEqual, 17)
			})
		})

		Convey("When the standings limit exceeds the cap", func() {
			w := h.do(http.MethodGet, "/sessions/s1/standings?limit=11", "")

			Convey("Then it should be rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeBody[errorBody](w).Code, ShouldEqual, "limit_exceeded")
			})
		})

		Convey("When reading logs for one team", func() {
			w := h.do(http.MethodGet, "/logs?session_id=s1&team_id=b&limit=1", "")

			Convey("Then the newest entry and the full total should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decodeBody[struct {
					Total   int `json:"total"`
					Entries []struct {
						LocationID string `json:"location_id"`
						Source     string `json:"source"`
					} `json:"entries"`
				}](w)
				So(body.Total, ShouldEqual, 2)
				So(body.Entries, ShouldHaveLength, 1)
				So(body.Entries[0].LocationID, ShouldEqual, "l2")
				So(body.Entries[0].Source, ShouldEqual, "delta")
			})
		})

		Convey("When the log limit is not a number", func() {
			w := h.do(http.MethodGet, "/logs?limit=ten", "")

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})

	Convey("Given a store that cannot read cells", t, func() {
		h := newHarness(t, func(s repository.Store) repository.Store { return unavailable{s} })

		Convey("When reading standings", func() {
			w := h.do(http.MethodGet, "/sessions/s1/standings", "")

			Convey("Then the storage failure should surface as unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(decodeBody[errorBody](w).Code, ShouldEqual, "storage_unavailable")
			})
		})
	})
}
