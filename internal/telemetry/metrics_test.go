package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveResolver_IncrementsNonConvergenceOnCap(t *testing.T) {
	before := testutil.ToFloat64(nonConvergenceTotal)

	ObserveResolver(4, false, 0)
	require.Equal(t, before, testutil.ToFloat64(nonConvergenceTotal))

	ObserveResolver(10, true, 2)
	require.Equal(t, before+1, testutil.ToFloat64(nonConvergenceTotal))
	require.Equal(t, float64(2), testutil.ToFloat64(overloadedSlots))
}

func TestObserveZeroCapacitySlots_SkipsZero(t *testing.T) {
	before := testutil.ToFloat64(zeroCapacitySlots)

	ObserveZeroCapacitySlots(0)
	require.Equal(t, before, testutil.ToFloat64(zeroCapacitySlots))

	ObserveZeroCapacitySlots(3)
	require.Equal(t, before+3, testutil.ToFloat64(zeroCapacitySlots))
}
