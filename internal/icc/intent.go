package icc

import "fmt"

// Intent is an ICC rendering intent.
type Intent uint32

// Intent constants matching the ICC header encoding.
const (
	IntentPerceptual           Intent = 0
	IntentRelativeColorimetric Intent = 1
	IntentSaturation           Intent = 2
	IntentAbsoluteColorimetric Intent = 3
)

// ParseIntent converts a string intent name to an Intent.
func ParseIntent(s string) (Intent, error) {
	switch s {
	case "perceptual", "":
		return IntentPerceptual, nil
	case "relative":
		return IntentRelativeColorimetric, nil
	case "saturation":
		return IntentSaturation, nil
	case "absolute":
		return IntentAbsoluteColorimetric, nil
	default:
		return 0, fmt.Errorf("unknown rendering intent: %q", s)
	}
}

func (i Intent) String() string {
	switch i {
	case IntentPerceptual:
		return "perceptual"
	case IntentRelativeColorimetric:
		return "relative"
	case IntentSaturation:
		return "saturation"
	case IntentAbsoluteColorimetric:
		return "absolute"
	default:
		return fmt.Sprintf("intent(%d)", uint32(i))
	}
}

// a2bTag picks the device-to-PCS table for an intent. Both colorimetric
// intents share A2B1; absolute adaptation to the media white is not applied.
func a2bTag(i Intent) string {
	switch i {
	case IntentRelativeColorimetric, IntentAbsoluteColorimetric:
		return "A2B1"
	case IntentSaturation:
		return "A2B2"
	default:
		return "A2B0"
	}
}
