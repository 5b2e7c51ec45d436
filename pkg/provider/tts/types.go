package tts

// DefaultLanguage is the BCP-47 tag replies are spoken in.
const DefaultLanguage = "zh-CN"

// Voice describes how a [Speaker] should render text.
type Voice struct {
	// Name is the engine-specific voice identifier. Empty selects the
	// engine's default voice for Language.
	Name string

	// Language is a BCP-47 tag such as "zh-CN".
	Language string

	// Rate scales the speaking rate; 1.0 is the engine's normal speed and
	// zero means 1.0.
	Rate float64
}

// WithDefaults returns v with an empty Language and Rate filled in.
func (v Voice) WithDefaults() Voice {
	if v.Language == "" {
		v.Language = DefaultLanguage
	}
	if v.Rate <= 0 {
		v.Rate = 1.0
	}
	return v
}
