package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordJob_IncrementsCounterAndObservesDuration(t *testing.T) {
	before := testutil.ToFloat64(jobsExecuted.WithLabelValues("deploy-token", "success"))
	RecordJob("deploy-token", "success", 10*time.Millisecond)
	after := testutil.ToFloat64(jobsExecuted.WithLabelValues("deploy-token", "success"))
	assert.Equal(t, before+1, after)
}

func TestRecordAction_DefaultsUnknownType(t *testing.T) {
	before := testutil.ToFloat64(actionsExecuted.WithLabelValues("unknown", "success"))
	RecordAction("", "success")
	after := testutil.ToFloat64(actionsExecuted.WithLabelValues("unknown", "success"))
	assert.Equal(t, before+1, after)
}

func TestRecordVerificationAttempt_IncrementsByPlatform(t *testing.T) {
	before := testutil.ToFloat64(verificationAttempts.WithLabelValues("etherscan_v2", "succeeded"))
	RecordVerificationAttempt("etherscan_v2", "succeeded")
	after := testutil.ToFloat64(verificationAttempts.WithLabelValues("etherscan_v2", "succeeded"))
	assert.Equal(t, before+1, after)
}

func TestSetNetworksInFlight_SetsGaugeValue(t *testing.T) {
	SetNetworksInFlight(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(networksInFlight))
	SetNetworksInFlight(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(networksInFlight))
}
