package scheme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func germanScheme() *Scheme {
	return &Scheme{
		Name:          "german",
		Direction:     LowerIsBetter,
		Scale:         []float64{1.0, 1.3, 1.7, 2.0, 2.3, 2.7, 3.0, 3.3, 3.7, 4.0, 5.0},
		PassThreshold: 4.0,
	}
}

func usScheme() *Scheme {
	return &Scheme{
		Name:          "us",
		Direction:     HigherIsBetter,
		Scale:         []float64{4.0, 3.7, 3.3, 3.0, 2.7, 2.3, 2.0, 1.7, 1.3, 1.0, 0.0},
		PassThreshold: 2.0,
	}
}

func TestSchemeValidate(t *testing.T) {
	t.Run("valid scheme", func(t *testing.T) {
		assert.NoError(t, germanScheme().Validate())
		assert.NoError(t, usScheme().Validate())
	})

	t.Run("empty name", func(t *testing.T) {
		s := germanScheme()
		s.Name = ""
		assert.Error(t, s.Validate())
	})

	t.Run("too few values", func(t *testing.T) {
		s := germanScheme()
		s.Scale = []float64{1.0}
		assert.Error(t, s.Validate())
	})

	t.Run("non-monotonic scale", func(t *testing.T) {
		s := germanScheme()
		s.Scale = []float64{1.0, 2.0, 1.5, 4.0}
		assert.Error(t, s.Validate())
	})

	t.Run("threshold outside scale", func(t *testing.T) {
		s := germanScheme()
		s.PassThreshold = 6.0
		assert.Error(t, s.Validate())
	})
}

func TestIsPassing(t *testing.T) {
	g := germanScheme()
	assert.True(t, g.IsPassing(1.0))
	assert.True(t, g.IsPassing(4.0))
	assert.False(t, g.IsPassing(4.3))
	assert.False(t, g.IsPassing(5.0))

	u := usScheme()
	assert.True(t, u.IsPassing(4.0))
	assert.True(t, u.IsPassing(2.0))
	assert.False(t, u.IsPassing(1.7))
}

func TestBetterAndBestOf(t *testing.T) {
	g := germanScheme()
	assert.True(t, g.Better(1.3, 2.0))
	assert.False(t, g.Better(2.0, 1.3))
	assert.Equal(t, 1.3, g.BestOf(1.3, 2.0))

	u := usScheme()
	assert.True(t, u.Better(3.7, 2.0))
	assert.Equal(t, 3.7, u.BestOf(2.0, 3.7))
}

func TestClampTowardBest(t *testing.T) {
	g := germanScheme()
	// A bonus may not improve past the cap
	assert.Equal(t, 1.3, g.ClampTowardBest(1.0, 1.3))
	assert.Equal(t, 2.0, g.ClampTowardBest(2.0, 1.3))

	u := usScheme()
	assert.Equal(t, 3.7, u.ClampTowardBest(4.0, 3.7))
	assert.Equal(t, 3.0, u.ClampTowardBest(3.0, 3.7))
}

func TestPointsToGrade(t *testing.T) {
	g := germanScheme()

	full, err := g.PointsToGrade(100, 100)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, full, 1e-9)

	zero, err := g.PointsToGrade(0, 100)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, zero, 1e-9)

	// Halfway lands on the middle of the scale
	mid, err := g.PointsToGrade(50, 100)
	require.NoError(t, err)
	assert.InDelta(t, 2.7, mid, 1e-9)

	_, err = g.PointsToGrade(10, 0)
	assert.Error(t, err)
}
