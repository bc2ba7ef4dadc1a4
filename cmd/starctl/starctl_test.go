package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/okian/starboard/internal/adapters/http/api"
	"github.com/okian/starboard/internal/adapters/repository"
	service "github.com/okian/starboard/internal/app"
	"github.com/okian/starboard/internal/domain/model"
	"github.com/okian/starboard/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func engineURL(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore(ctx)
	t.Cleanup(func() { _ = store.Close() })
	for _, err := range []error{
		store.PutSession(ctx, model.Session{ID: "s1", Name: "s1", Status: model.SessionOnline}),
		store.PutTeam(ctx, model.Team{ID: "red", SessionID: "s1", Name: "Red"}),
		store.PutLocation(ctx, model.Location{ID: "harbor", SessionID: "s1", Name: "Harbor"}),
	} {
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	engine := service.New(store, service.WithLogger(logger.Nop()))
	mux := http.NewServeMux()
	api.NewServer(engine, engine).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStarctl(t *testing.T) {
	convey.Convey("Given a running engine", t, func() {
		url := engineURL(t)

		convey.Convey("When storming a cell", func() {
			out, err := execute("storm", "--url", url, "--team", "red", "--location", "harbor", "--count", "25", "--workers", "4", "--loglevel", "error")

			convey.Convey("Then the storm should verify", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "sent=25 failed=0")
				convey.So(out, convey.ShouldContainSubstring, "consistent")
			})
		})

		convey.Convey("When the cell flags are missing", func() {
			_, err := execute("storm", "--url", url)

			convey.Convey("Then cobra should refuse", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When listing effects", func() {
			out, err := execute("effects", "--url", url, "--session", "s1")

			convey.Convey("Then none should be in force", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "0 effect(s)")
			})
		})

		convey.Convey("When sweeping", func() {
			out, err := execute("sweep", "--url", url)

			convey.Convey("Then nothing should be closed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "closed 0 effect(s)")
			})
		})

		convey.Convey("When recomputing", func() {
			out, err := execute("recompute", "--url", url, "harbor")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "recomputed harbor")

			_, err = execute("recompute", "--url", url, "--retries", "0", "nowhere")
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When the log level is unknown", func() {
			_, err := execute("sweep", "--url", url, "--loglevel", "loud")

			convey.Convey("Then the command should fail", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}
