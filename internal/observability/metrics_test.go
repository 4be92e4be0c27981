package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordSyncBatch(t *testing.T) {
	beforeStored := testutil.ToFloat64(syncRecordsCounter.WithLabelValues("stored"))
	beforeFailed := testutil.ToFloat64(syncRecordsCounter.WithLabelValues("failed"))

	RecordSyncBatch(3, 2, 0, 1)

	require.Equal(t, beforeStored+2, testutil.ToFloat64(syncRecordsCounter.WithLabelValues("stored")))
	require.Equal(t, beforeFailed+1, testutil.ToFloat64(syncRecordsCounter.WithLabelValues("failed")))
}

func TestRecordSyncRequestGroupsByClass(t *testing.T) {
	before := testutil.ToFloat64(syncRequestsCounter.WithLabelValues("4xx"))
	RecordSyncRequest(400)
	RecordSyncRequest(403)
	require.Equal(t, before+2, testutil.ToFloat64(syncRequestsCounter.WithLabelValues("4xx")))
}

func TestRecordWorkoutPersistedIgnoresZero(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0)
	RecordWorkoutPersisted(ts)
	RecordWorkoutPersisted(time.Time{})
	require.Equal(t, float64(ts.Unix()), testutil.ToFloat64(workoutPersistGauge))
}
