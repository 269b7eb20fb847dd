package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloses(t *testing.T) {
	ticks := []Tick{
		{Timestamp: 1, Close: 100},
		{Timestamp: 2, Close: 101.5},
		{Timestamp: 3, Close: 99},
	}
	assert.Equal(t, []float64{100, 101.5, 99}, Closes(ticks))
	assert.Empty(t, Closes(nil))
}
