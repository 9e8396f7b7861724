package types

// Emotion label constants. The enumeration order below is significant:
// plurality ties in most-common-emotion computations resolve to the label
// that appears earliest in EmotionLabels.
const (
	EmotionHappy     = "happy"
	EmotionSad       = "sad"
	EmotionAngry     = "angry"
	EmotionSurprised = "surprised"
	EmotionFearful   = "fearful"
	EmotionDisgusted = "disgusted"
	EmotionNeutral   = "neutral"
)

// EmotionLabels is the closed set of recognized emotion labels in
// tie-break order.
var EmotionLabels = []string{
	EmotionHappy,
	EmotionSad,
	EmotionAngry,
	EmotionSurprised,
	EmotionFearful,
	EmotionDisgusted,
	EmotionNeutral,
}

// IsValidEmotion checks if the given label is one of the recognized emotions.
func IsValidEmotion(label string) bool {
	for _, valid := range EmotionLabels {
		if valid == label {
			return true
		}
	}
	return false
}

// EmotionRank returns the position of a label in the fixed enumeration,
// or len(EmotionLabels) for unknown labels so they always lose ties.
func EmotionRank(label string) int {
	for i, valid := range EmotionLabels {
		if valid == label {
			return i
		}
	}
	return len(EmotionLabels)
}
