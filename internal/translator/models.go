package translator

import "fmt"

// DetectedLanguage is the source language the service detected for a text.
type DetectedLanguage struct {
	Language string  `json:"language"`
	Score    float64 `json:"score"`
}

func (d DetectedLanguage) String() string {
	return d.Language
}

// Translation is the text translated into a single target language.
type Translation struct {
	Text string `json:"text"`
	To   string `json:"to"`
}

// TranslationResult holds the translations of one input text. DetectedLanguage
// is only present when no source language was given.
type TranslationResult struct {
	DetectedLanguage *DetectedLanguage `json:"detectedLanguage,omitempty"`
	Translations     []Translation     `json:"translations"`
}

// Translation returns the first translation, or nil when there are none.
func (r TranslationResult) Translation() *Translation {
	if len(r.Translations) == 0 {
		return nil
	}
	return &r.Translations[0]
}

type DetectionAlternative struct {
	DetectedLanguage
	IsTranslationSupported     bool `json:"isTranslationSupported"`
	IsTransliterationSupported bool `json:"isTransliterationSupported"`
}

// DetectionResult is the detected language of one input text, with less
// likely alternatives.
type DetectionResult struct {
	DetectionAlternative
	Alternatives []DetectionAlternative `json:"alternatives,omitempty"`
}

// ServiceLanguage is a language supported for translation. Name and
// NativeName are localised according to the requested display language.
type ServiceLanguage struct {
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	NativeName string    `json:"nativeName"`
	Dir        Direction `json:"dir"`
}

func (l ServiceLanguage) String() string {
	return l.Name
}

// Direction is the writing direction of a language.
type Direction int

const (
	LeftToRight Direction = iota
	RightToLeft
)

var directionNames = map[Direction]string{
	LeftToRight: "ltr",
	RightToLeft: "rtl",
}

var directionValues = map[string]Direction{
	"ltr": LeftToRight,
	"rtl": RightToLeft,
}

func (d Direction) String() string {
	if name, ok := directionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

func (d Direction) MarshalText() ([]byte, error) {
	name, ok := directionNames[d]
	if !ok {
		return nil, fmt.Errorf("unknown direction %d", int(d))
	}
	return []byte(name), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	value, ok := directionValues[string(text)]
	if !ok {
		return fmt.Errorf("unknown direction %q", text)
	}
	*d = value
	return nil
}
