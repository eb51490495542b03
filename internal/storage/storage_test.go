package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/bandwatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStorage_RunLifecycle(t *testing.T) {
	s := newTestStorage(t)
	runID := uuid.NewString()
	start := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.StartRun(runID, start))
	run, err := s.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, "running", run.Status)
	assert.True(t, run.EndedAt.IsZero())

	end := start.Add(6 * time.Hour)
	require.NoError(t, s.FinishRun(runID, end, "session_ended"))
	run, err = s.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, "session_ended", run.Status)
	assert.True(t, run.EndedAt.Equal(end))
}

func TestStorage_FinishRun_NotFound(t *testing.T) {
	s := newTestStorage(t)
	assert.Error(t, s.FinishRun("missing", time.Now(), "completed"))
	_, err := s.GetRun("missing")
	assert.Error(t, err)
}

func TestStorage_Bands(t *testing.T) {
	s := newTestStorage(t)
	runID := uuid.NewString()
	require.NoError(t, s.StartRun(runID, time.Now()))

	inst := models.Instrument{Name: "MOAT", Symbol: "309230.KS"}
	band := models.Band{Mean: 0.0004, StdDev: 0.011, K: 2, Shape: models.ShapeAsymmetric, Observations: 1249}
	require.NoError(t, s.SaveBand(runID, inst, band))

	// One band per instrument per run.
	assert.Error(t, s.SaveBand(runID, inst, band))

	got, err := s.GetBands(runID)
	require.NoError(t, err)
	require.Contains(t, got, "MOAT")
	assert.Equal(t, band, got["MOAT"])
}

func TestStorage_BandRequiresRun(t *testing.T) {
	s := newTestStorage(t)
	err := s.SaveBand("no-such-run", models.Instrument{Name: "X", Symbol: "X"}, models.Band{})
	assert.Error(t, err)
}

func TestStorage_Alerts(t *testing.T) {
	s := newTestStorage(t)
	runID := uuid.NewString()
	require.NoError(t, s.StartRun(runID, time.Now()))

	now := time.Now()
	first := &models.Alert{
		ID:             uuid.NewString(),
		RunID:          runID,
		Instrument:     models.Instrument{Name: "MOAT", Symbol: "309230.KS"},
		Side:           models.SideBuy,
		PreviousClose:  100,
		CurrentPrice:   94,
		Deviation:      -0.06,
		Threshold:      -0.04,
		ThresholdPrice: 96,
		DetectedAt:     now,
		Notified:       true,
	}
	second := *first
	second.ID = uuid.NewString()
	second.Instrument = models.Instrument{Name: "REIT", Symbol: "476800.KS"}
	second.Side = models.SideSell
	second.DetectedAt = now.Add(time.Minute)
	second.Notified = false

	require.NoError(t, s.AddAlert(&second))
	require.NoError(t, s.AddAlert(first))

	alerts, err := s.GetAlerts(runID)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "MOAT", alerts[0].Instrument.Name)
	assert.Equal(t, models.SideBuy, alerts[0].Side)
	assert.True(t, alerts[0].Notified)
	assert.Equal(t, models.SideSell, alerts[1].Side)
	assert.False(t, alerts[1].Notified)
	assert.Equal(t, 96.0, alerts[0].ThresholdPrice)
}

func TestStorage_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	s, err := New(path)
	require.NoError(t, err)
	runID := uuid.NewString()
	require.NoError(t, s.StartRun(runID, time.Now()))
	require.NoError(t, s.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()
	_, err = reopened.GetRun(runID)
	assert.NoError(t, err)
}
