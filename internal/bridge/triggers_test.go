package bridge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/quillhaven/titsbridge/internal/bridge"
)

func TestClassificationTrigger_UniformFlags(t *testing.T) {
	tests := []struct {
		name  string
		flags []int
		want  string
	}{
		{"progression", []int{0b001, 0b001}, bridge.TriggerReceiveProgression},
		{"useful", []int{0b010}, bridge.TriggerReceiveUseful},
		{"trap", []int{0b100, 0b100, 0b100}, bridge.TriggerReceiveTrap},
		{"filler", []int{0, 0}, bridge.TriggerReceiveFiller},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := bridge.ClassificationTrigger(tt.flags)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassificationTrigger_MixedFlags(t *testing.T) {
	_, ok := bridge.ClassificationTrigger([]int{0b001, 0b010})
	assert.False(t, ok)
}

func TestClassificationTrigger_EmptyFlags(t *testing.T) {
	// An event with no flag-bearing parts carries no classification.
	_, ok := bridge.ClassificationTrigger(nil)
	assert.False(t, ok)
}

func TestClassificationTrigger_UnknownUniformValue(t *testing.T) {
	// progression|useful combined is outside the known set.
	_, ok := bridge.ClassificationTrigger([]int{0b011, 0b011})
	assert.False(t, ok)
}

// TestProperty_MixedFlagsNeverClassify verifies that any flag list holding
// at least two distinct values never yields a classification trigger.
func TestProperty_MixedFlagsNeverClassify(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		flags := rapid.SliceOfN(rapid.IntRange(0, 7), 2, 16).Draw(rt, "flags")

		mixed := false
		for _, f := range flags[1:] {
			if f != flags[0] {
				mixed = true
				break
			}
		}
		if !mixed {
			rt.Skip("uniform draw")
		}

		_, ok := bridge.ClassificationTrigger(flags)
		assert.False(rt, ok)
	})
}

// TestProperty_UniformKnownFlagsAlwaysClassify verifies that a non-empty
// list repeating one known classification value always yields exactly the
// matching trigger.
func TestProperty_UniformKnownFlagsAlwaysClassify(t *testing.T) {
	expected := map[int]string{
		bridge.FlagProgression: bridge.TriggerReceiveProgression,
		bridge.FlagUseful:      bridge.TriggerReceiveUseful,
		bridge.FlagTrap:        bridge.TriggerReceiveTrap,
		bridge.FlagFiller:      bridge.TriggerReceiveFiller,
	}

	rapid.Check(t, func(rt *rapid.T) {
		value := rapid.SampledFrom([]int{
			bridge.FlagFiller, bridge.FlagProgression, bridge.FlagUseful, bridge.FlagTrap,
		}).Draw(rt, "value")
		count := rapid.IntRange(1, 16).Draw(rt, "count")

		flags := make([]int, count)
		for i := range flags {
			flags[i] = value
		}

		got, ok := bridge.ClassificationTrigger(flags)
		assert.True(rt, ok)
		assert.Equal(rt, expected[value], got)
	})
}

func TestTriggerDocsCoverEveryTrigger(t *testing.T) {
	names := make(map[string]bool)
	for _, doc := range bridge.TriggerDocs() {
		names[doc.Name] = true
	}

	for _, want := range []string{
		bridge.TriggerReceive,
		bridge.TriggerReceiveProgression,
		bridge.TriggerReceiveUseful,
		bridge.TriggerReceiveFiller,
		bridge.TriggerReceiveTrap,
		bridge.TriggerGoal,
		bridge.TriggerDeathlink,
	} {
		assert.True(t, names[want], "missing doc for %s", want)
	}
}
