package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerStop(t *testing.T) {
	timer := NewTimer("ocr")
	time.Sleep(5 * time.Millisecond)
	d := timer.Stop()

	assert.GreaterOrEqual(t, d, 5*time.Millisecond)
	assert.Equal(t, d, timer.Duration())
	assert.Equal(t, "ocr", timer.Name())
	assert.Contains(t, timer.String(), "ocr:")
}

func TestStageClockAccumulates(t *testing.T) {
	c := NewStageClock()
	c.Measure("preprocess", func() { time.Sleep(2 * time.Millisecond) })
	c.Measure("preprocess", func() { time.Sleep(2 * time.Millisecond) })
	c.Measure("extract", func() {})

	assert.GreaterOrEqual(t, c.Get("preprocess"), 4*time.Millisecond)
	assert.GreaterOrEqual(t, c.Total(), c.Get("preprocess"))
	assert.Zero(t, c.Get("missing"))
}

func TestStageClockTrack(t *testing.T) {
	c := NewStageClock()
	stop := c.Track("download")
	time.Sleep(2 * time.Millisecond)
	stop()

	assert.GreaterOrEqual(t, c.Get("download"), 2*time.Millisecond)
}

func TestStageClockAttrsOrder(t *testing.T) {
	c := NewStageClock()
	c.Measure("b", func() {})
	c.Measure("a", func() {})
	c.Measure("b", func() {})

	attrs := c.Attrs()
	assert.Len(t, attrs, 4)
	assert.Equal(t, "b", attrs[0])
	assert.Equal(t, "a", attrs[2])
}
