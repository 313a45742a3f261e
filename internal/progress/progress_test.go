package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledBarIsNil(t *testing.T) {
	p := New(10, "rows", false)
	assert.Nil(t, p)
	assert.NotPanics(t, func() {
		p.Increment()
		p.Finish()
	})
}

func TestBarCountsTowardTotal(t *testing.T) {
	var buf bytes.Buffer
	p := newBar(&buf, 3, "contigs")
	for i := 0; i < 3; i++ {
		p.Increment()
	}
	p.Finish()
	assert.Equal(t, 3, p.done)
	assert.Equal(t, float64(1), p.bar.State().CurrentPercent)
}

func TestSpinnerWithoutTotal(t *testing.T) {
	var buf bytes.Buffer
	p := newBar(&buf, 0, "hits")
	require.NotNil(t, p)
	p.Increment()
	p.Increment()
	assert.Equal(t, int64(2), p.bar.State().CurrentNum)
	p.Finish()
	assert.Equal(t, 2, p.done)
}
