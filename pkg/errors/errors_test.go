package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTaxonomy(t *testing.T) {
	Convey("Given errors from the taxonomy", t, func() {
		nf := NotFound("conversation %s", "c-1")
		val := Validation("role %q is not allowed", "robot")
		tr := Transient(fmt.Errorf("dial tcp: refused"), "save session")

		Convey("Then they match their sentinels", func() {
			So(IsNotFound(nf), ShouldBeTrue)
			So(IsValidation(val), ShouldBeTrue)
			So(IsTransient(tr), ShouldBeTrue)
			So(IsNotFound(val), ShouldBeFalse)
		})

		Convey("Then wrapping keeps the kind reachable", func() {
			wrapped := fmt.Errorf("join: %w", nf)
			So(IsNotFound(wrapped), ShouldBeTrue)
			So(KindOf(wrapped), ShouldEqual, KindNotFound)
		})

		Convey("Then the cause is unwrappable", func() {
			So(stderrors.Unwrap(tr), ShouldNotBeNil)
			So(tr.Error(), ShouldContainSubstring, "refused")
		})
	})
}

func TestToResponse(t *testing.T) {
	Convey("Given errors of each kind", t, func() {
		Convey("Then they map to HTTP status codes", func() {
			So(ToResponse(NotFound("session x")).Code, ShouldEqual, http.StatusNotFound)
			So(ToResponse(Validation("bad")).Code, ShouldEqual, http.StatusBadRequest)
			So(ToResponse(Transient(nil, "db")).Code, ShouldEqual, http.StatusServiceUnavailable)
			So(ToResponse(fmt.Errorf("boom")).Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("Then the message of a validation error is kept", func() {
			So(ToResponse(Validation("content is blank")).Message, ShouldEqual, "content is blank")
		})
	})
}

func TestRetryWithBackoff(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}

	Convey("Given a function that succeeds on the second attempt", t, func() {
		calls := 0
		err := RetryWithBackoff(context.Background(), cfg, func() error {
			calls++
			if calls < 2 {
				return fmt.Errorf("flaky")
			}
			return nil
		})

		So(err, ShouldBeNil)
		So(calls, ShouldEqual, 2)
	})

	Convey("Given a function that always fails", t, func() {
		calls := 0
		err := RetryWithBackoff(context.Background(), cfg, func() error {
			calls++
			return fmt.Errorf("down")
		})

		So(calls, ShouldEqual, 3)
		So(IsTransient(err), ShouldBeTrue)
	})

	Convey("Given a validation failure", t, func() {
		calls := 0
		err := RetryWithBackoff(context.Background(), cfg, func() error {
			calls++
			return Validation("never valid")
		})

		So(calls, ShouldEqual, 1)
		So(IsValidation(err), ShouldBeTrue)
	})
}
