package bridge

// Trigger names the bridge can fire. These are fixed at build time; the
// operator configures any subset of them inside the overlay application and
// unconfigured names are silently skipped.
const (
	TriggerReceive            = "AP-Receive"
	TriggerReceiveProgression = "AP-Receive-Progression"
	TriggerReceiveUseful      = "AP-Receive-Useful"
	TriggerReceiveFiller      = "AP-Receive-Filler"
	TriggerReceiveTrap        = "AP-Receive-Trap"
	TriggerGoal               = "AP-Goal"
	TriggerDeathlink          = "AP-Deathlink"
)

// Item classification flag values as encoded by the coordination server.
const (
	FlagFiller      = 0
	FlagProgression = 0b001
	FlagUseful      = 0b010
	FlagTrap        = 0b100
)

// ClassificationTrigger maps a list of per-part classification flags to the
// matching classification-specific trigger.
//
// A trigger is returned only when the list is non-empty and every flag is
// exactly the same known classification value. Mixed flags, or a uniform
// value outside the known set (e.g. a progression|useful combination), fire
// no classification trigger. An empty list fires nothing: an event without
// flag-bearing parts carries no classification.
func ClassificationTrigger(flags []int) (string, bool) {
	if len(flags) == 0 {
		return "", false
	}
	first := flags[0]
	for _, f := range flags[1:] {
		if f != first {
			return "", false
		}
	}

	switch first {
	case FlagProgression:
		return TriggerReceiveProgression, true
	case FlagUseful:
		return TriggerReceiveUseful, true
	case FlagTrap:
		return TriggerReceiveTrap, true
	case FlagFiller:
		return TriggerReceiveFiller, true
	default:
		return "", false
	}
}

// TriggerDoc describes one trigger for operator-facing help output.
type TriggerDoc struct {
	Name  string
	Fires string
}

// TriggerDocs lists every trigger the bridge can fire and when it does.
func TriggerDocs() []TriggerDoc {
	return []TriggerDoc{
		{TriggerReceive, "when receiving any item"},
		{TriggerReceiveProgression, "when receiving a Progression item"},
		{TriggerReceiveUseful, "when receiving a Useful item"},
		{TriggerReceiveFiller, "when receiving a Filler item"},
		{TriggerReceiveTrap, "when receiving a Trap"},
		{TriggerGoal, "when completing your goal"},
		{TriggerDeathlink, "when receiving a Death"},
	}
}
