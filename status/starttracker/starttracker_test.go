package starttracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartTracker(t *testing.T) {
	st := newTracker(StartConfig{
		ReportHealthz: true,
		ErrorDuration: time.Hour,
		WarnDuration:  time.Hour,
	}, "test", true)
	assert.Equal(t, MinEvaluationInterval, st.Config.EvaluationInterval)

	assert.False(t, st.Completed())
	assert.NoError(t, st.check(), "below thresholds")

	st.Config.ErrorDuration = 0
	assert.Error(t, st.check())

	st.SetListening()
	st.SetPassedFirstFlush()
	assert.False(t, st.Completed(), "archive pending")
	st.SetPassedFirstArchive()
	assert.True(t, st.Completed())
	assert.NoError(t, st.check())
}

func TestStartTrackerWithoutArchive(t *testing.T) {
	st := newTracker(StartConfig{}, "test", false)
	assert.NoError(t, st.check(), "not reporting to healthz")
	st.SetListening()
	st.SetPassedFirstFlush()
	assert.True(t, st.Completed())
}

func TestValidated(t *testing.T) {
	sc := StartConfig{
		EvaluationInterval: time.Millisecond,
		ErrorDuration:      time.Minute,
		WarnDuration:       time.Hour,
	}.Validated()
	assert.Equal(t, MinEvaluationInterval, sc.EvaluationInterval)
	assert.Equal(t, time.Minute, sc.ErrorDuration)
	assert.Equal(t, time.Minute, sc.WarnDuration)

	sc = StartConfig{ErrorDuration: -time.Second, WarnDuration: -time.Second}.Validated()
	assert.Equal(t, time.Duration(0), sc.ErrorDuration)
	assert.Equal(t, time.Duration(0), sc.WarnDuration)
}
