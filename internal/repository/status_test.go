package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatus_Valid(t *testing.T) {
	for _, status := range []Status{
		StatusAvailable, StatusReserved, StatusSold, StatusReturned,
		StatusDamaged, StatusUnavailable, StatusDisplayUnit,
		StatusQualityControl, StatusInTransit, StatusDisposed,
	} {
		require.True(t, status.Valid(), "status %s must be valid", status)
	}

	require.False(t, Status("UNKNOWN").Valid())
	require.False(t, Status("").Valid())
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"available to reserved", StatusAvailable, StatusReserved, true},
		{"available to sold is forbidden", StatusAvailable, StatusSold, false},
		{"available to disposed is forbidden", StatusAvailable, StatusDisposed, false},
		{"available to damaged", StatusAvailable, StatusDamaged, true},
		{"reserved to sold", StatusReserved, StatusSold, true},
		{"reserved to available", StatusReserved, StatusAvailable, true},
		{"sold to returned", StatusSold, StatusReturned, true},
		{"sold to available is forbidden", StatusSold, StatusAvailable, false},
		{"returned to available", StatusReturned, StatusAvailable, true},
		{"returned to damaged", StatusReturned, StatusDamaged, true},
		{"damaged to disposed", StatusDamaged, StatusDisposed, true},
		{"damaged to sold is forbidden", StatusDamaged, StatusSold, false},
		{"disposed is terminal", StatusDisposed, StatusAvailable, false},
		{"disposed to disposed is forbidden", StatusDisposed, StatusDisposed, false},
		{"in transit to available", StatusInTransit, StatusAvailable, true},
		{"quality control to available", StatusQualityControl, StatusAvailable, true},
		{"display unit to available", StatusDisplayUnit, StatusAvailable, true},
		{"reserved to reserved is forbidden", StatusReserved, StatusReserved, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))

			err := checkTransition(tt.from, tt.to)
			if tt.allowed {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrIllegalTransition)
			}
		})
	}
}

func TestCheckTransition_ErrorNamesStatuses(t *testing.T) {
	err := checkTransition(StatusSold, StatusAvailable)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrIllegalTransition))
	require.Contains(t, err.Error(), "SOLD")
	require.Contains(t, err.Error(), "AVAILABLE")
}
