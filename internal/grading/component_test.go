package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddComponentWithoutRebalance(t *testing.T) {
	comps, err := AddComponent(nil, "final", 60, false)
	assert.Nil(t, comps)
	var wse *WeightSumError
	require.ErrorAs(t, err, &wse)
	assert.Equal(t, 60.0, wse.Sum)

	comps, err = AddComponent(nil, "final", 100, false)
	require.NoError(t, err)
	comps, err = AddComponent(comps, "extra", 10, false)
	assert.Error(t, err)
	_ = comps
}

func TestAddComponentRebalance(t *testing.T) {
	comps, err := AddComponent(nil, "final", 100, false)
	require.NoError(t, err)
	comps, err = AddComponent(comps, "homework", 40, true)
	require.NoError(t, err)

	require.Len(t, comps, 2)
	assert.Equal(t, 60.0, comps[0].Weight)
	assert.Equal(t, 40.0, comps[1].Weight)
	assert.NoError(t, ValidateWeights(comps))

	// Awkward fractions still land on exactly 100
	comps, err = AddComponent(comps, "quiz", 33.3, true)
	require.NoError(t, err)
	assert.NoError(t, ValidateWeights(comps))
	assert.InDelta(t, 100.0, NonBonusWeightSum(comps), 1e-9)
}

func TestAddComponentRejectsBadWeight(t *testing.T) {
	_, err := AddComponent(nil, "x", 0, true)
	assert.Error(t, err)
	_, err = AddComponent(nil, "x", 101, true)
	assert.Error(t, err)
}

func TestAddComponentRebalanceIgnoresBonus(t *testing.T) {
	comps := []Component{
		{Name: "final", Weight: 100},
		{Name: "quizzes", IsBonus: true},
	}
	comps, err := AddComponent(comps, "homework", 25, true)
	require.NoError(t, err)

	assert.Equal(t, 75.0, comps[0].Weight)
	assert.Equal(t, 0.0, comps[1].Weight)
	assert.Equal(t, 25.0, comps[2].Weight)
	assert.NoError(t, ValidateWeights(comps))
}

func TestRemoveComponentRescales(t *testing.T) {
	comps := []Component{
		{Name: "final", Weight: 60},
		{Name: "homework", Weight: 40},
	}
	comps, err := RemoveComponent(comps, "homework")
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, 100.0, comps[0].Weight)

	_, err = RemoveComponent(comps, "nope")
	assert.Error(t, err)
}

func TestRemoveBonusComponentLeavesWeights(t *testing.T) {
	comps := []Component{
		{Name: "final", Weight: 100},
		{Name: "quizzes", IsBonus: true},
	}
	comps, err := RemoveComponent(comps, "quizzes")
	require.NoError(t, err)
	require.Len(t, comps, 1)
	assert.Equal(t, 100.0, comps[0].Weight)
}
