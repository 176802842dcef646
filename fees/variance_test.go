package fees_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noodieknoodie/4GPTK/fees"
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

func TestClassify_MissingExpected_IsUnknown(t *testing.T) {
	// GIVEN: No expected fee (percentage contract with missing AUM)
	// WHEN: Classifying against any actual fee
	// THEN: Status is unknown, not a zero variance

	v := fees.Classify(nil, fees.D(500))

	assert.Equal(t, fees.VarianceUnknown, v.Status)
	assert.Nil(t, v.Delta)
	assert.Equal(t, "missing AUM data", v.Message)
}

func TestClassify_ExactMatch(t *testing.T) {
	v := fees.Classify(fees.DP(1000), fees.D(1000))

	assert.Equal(t, fees.VarianceExact, v.Status)
	require.NotNil(t, v.Delta)
	assert.True(t, v.Delta.IsZero())
	assert.Equal(t, "Exact match", v.Message)
}

func TestClassify_SubCentDelta_IsExact(t *testing.T) {
	// Deltas under one cent are treated as exact matches.
	v := fees.Classify(fees.DP(1000), fees.D(1000.005))

	assert.Equal(t, fees.VarianceExact, v.Status)
}

func TestClassify_Bands(t *testing.T) {
	tests := []struct {
		name     string
		expected float64
		actual   float64
		status   fees.VarianceStatus
	}{
		{"4% over is acceptable", 3750, 3900, fees.VarianceAcceptable},
		{"10% over is warning", 3750, 4125, fees.VarianceWarning},
		{"20% over is alert", 1000, 1200, fees.VarianceAlert},
		{"4% under is acceptable", 3750, 3600, fees.VarianceAcceptable},
		{"20% under is alert", 1000, 800, fees.VarianceAlert},
		{"exactly 5% is acceptable", 1000, 1050, fees.VarianceAcceptable},
		{"exactly 15% is warning", 1000, 1150, fees.VarianceWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := fees.Classify(fees.DP(tt.expected), fees.D(tt.actual))
			assert.Equal(t, tt.status, v.Status)
		})
	}
}

func TestClassify_OverpaymentMessage(t *testing.T) {
	v := fees.Classify(fees.DP(1000), fees.D(1200))

	require.NotNil(t, v.Delta)
	assert.True(t, v.Delta.Equal(fees.D(200)))
	assert.Equal(t, "Overpaid by $200.00 (20.00%)", v.Message)
}

func TestClassify_UnderpaymentMessage(t *testing.T) {
	// The delta keeps its sign; the message reports the magnitude with the
	// directional word prefixed.
	v := fees.Classify(fees.DP(1000), fees.D(800))

	require.NotNil(t, v.Delta)
	assert.True(t, v.Delta.Equal(fees.D(-200)))
	assert.Equal(t, "Underpaid by $200.00 (20.00%)", v.Message)
}

func TestClassify_ZeroExpected_NonzeroActual_IsAlert(t *testing.T) {
	v := fees.Classify(fees.DP(0), fees.D(100))

	assert.Equal(t, fees.VarianceAlert, v.Status)
	assert.Nil(t, v.PercentDelta)
	assert.Equal(t, "Overpaid by $100.00", v.Message)
}

func TestClassifyWith_CustomThresholds(t *testing.T) {
	tight := fees.Thresholds{
		Epsilon:       fees.D(0.01),
		AcceptablePct: fees.D(1),
		WarningPct:    fees.D(2),
	}

	v := fees.ClassifyWith(tight, fees.DP(1000), fees.D(1015))

	assert.Equal(t, fees.VarianceWarning, v.Status)
}

// =============================================================================
// COMPLIANCE
// =============================================================================

func TestComplianceStatus_NoPayments(t *testing.T) {
	color, reason := fees.ComplianceStatus(nil, fees.ScheduleMonthly, time.Now())

	assert.Equal(t, fees.ComplianceRed, color)
	assert.Equal(t, "No payment records found", reason)
}

func TestComplianceStatus_Windows(t *testing.T) {
	today := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		daysAgo  int
		schedule fees.Schedule
		color    fees.ComplianceColor
	}{
		{"monthly recent", 30, fees.ScheduleMonthly, fees.ComplianceGreen},
		{"monthly approaching", 60, fees.ScheduleMonthly, fees.ComplianceYellow},
		{"monthly overdue", 90, fees.ScheduleMonthly, fees.ComplianceRed},
		{"quarterly recent", 90, fees.ScheduleQuarterly, fees.ComplianceGreen},
		{"quarterly approaching", 150, fees.ScheduleQuarterly, fees.ComplianceYellow},
		{"quarterly overdue", 250, fees.ScheduleQuarterly, fees.ComplianceRed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			last := today.AddDate(0, 0, -tt.daysAgo)
			color, _ := fees.ComplianceStatus(&last, tt.schedule, today)
			assert.Equal(t, tt.color, color)
		})
	}
}
