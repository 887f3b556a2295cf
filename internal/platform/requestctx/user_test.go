package requestctx

import (
	"context"
	"testing"
)

func TestUserIDRoundTrip(t *testing.T) {
	ctx := WithUserID(context.Background(), "user-7")
	if got := UserIDFromContext(ctx); got != "user-7" {
		t.Fatalf("user id = %q, want user-7", got)
	}
}

func TestUserIDFromContextEmptyWhenUnset(t *testing.T) {
	if got := UserIDFromContext(context.Background()); got != "" {
		t.Fatalf("user id = %q, want empty", got)
	}
}

func TestWithUserIDNilContext(t *testing.T) {
	ctx := WithUserID(nil, "user-1") //nolint:staticcheck // exercising the nil guard
	if got := UserIDFromContext(ctx); got != "user-1" {
		t.Fatalf("user id = %q, want user-1", got)
	}
}
