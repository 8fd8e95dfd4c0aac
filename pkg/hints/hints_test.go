package hints_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/paulschiretz/pgl-filediff/pkg/hints"
)

func TestHint(t *testing.T) {
	errBase := errors.New("base error")

	t.Run("New keeps message", func(t *testing.T) {
		err := hints.New("category skipped")
		if err.Error() != "category skipped" {
			t.Errorf("expected %q, got %q", "category skipped", err.Error())
		}
		if !hints.IsHint(err) {
			t.Error("expected New to produce a hint")
		}
	})

	t.Run("Newf wraps target", func(t *testing.T) {
		err := hints.Newf("lookup %q: %w", "a/b", errBase)
		if !hints.Is(err, errBase) {
			t.Error("expected Newf hint to match the wrapped error")
		}
	})

	t.Run("Survives further wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", hints.Newf("inner: %w", errBase))
		if !hints.IsHint(err) {
			t.Error("expected wrapped hint to still be a hint")
		}
		if !hints.Is(err, errBase) {
			t.Error("expected wrapped hint to match base error")
		}
	})

	t.Run("Plain errors are not hints", func(t *testing.T) {
		if hints.IsHint(errBase) {
			t.Error("plain error reported as hint")
		}
		if hints.Is(errBase, errBase) {
			t.Error("Is should be false for a non-hint")
		}
		if hints.IsHint(nil) {
			t.Error("nil reported as hint")
		}
	})
}
