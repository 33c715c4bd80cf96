package user

import (
	"testing"
	"time"

	"github.com/angelo-gelato/loyalty-backend/internal/loyalty"
	"github.com/stretchr/testify/require"
)

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(loyalty.VisitDateLayout, s)
	require.NoError(t, err)
	return d
}
