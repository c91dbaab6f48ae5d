package speech

import (
	"fmt"
	"strings"
)

// Gender of a synthesis voice.
type Gender int

const (
	Female Gender = iota
	Male
)

var genderNames = map[Gender]string{
	Female: "Female",
	Male:   "Male",
}

func (g Gender) String() string {
	if name, ok := genderNames[g]; ok {
		return name
	}
	return fmt.Sprintf("Gender(%d)", int(g))
}

func (g Gender) MarshalText() ([]byte, error) {
	name, ok := genderNames[g]
	if !ok {
		return nil, fmt.Errorf("unknown gender %d", int(g))
	}
	return []byte(name), nil
}

// UnmarshalText accepts the gender name in any case.
func (g *Gender) UnmarshalText(text []byte) error {
	for value, name := range genderNames {
		if strings.EqualFold(name, string(text)) {
			*g = value
			return nil
		}
	}
	return fmt.Errorf("unknown gender %q", text)
}

// AudioOutputFormat is the encoding of synthesised audio. The zero value is
// the service default, 16kHz 16-bit mono PCM in a RIFF container.
type AudioOutputFormat int

const (
	Riff16Khz16BitMonoPcm AudioOutputFormat = iota
	Raw16Khz16BitMonoPcm
	Raw8Khz8BitMonoMULaw
	Riff8Khz8BitMonoMULaw
	Ssml16Khz16BitMonoSilk
	Raw16Khz16BitMonoTrueSilk
	Ssml16Khz16BitMonoTts
	Audio16Khz128KBitRateMonoMp3
	Audio16Khz64KBitRateMonoMp3
	Audio16Khz32KBitRateMonoMp3
	Audio16Khz16KbpsMonoSiren
	Riff16Khz16KbpsMonoSiren
	Raw24Khz16BitMonoPcm
	Riff24Khz16BitMonoPcm
	Audio24Khz48KBitRateMonoMp3
	Audio24Khz96KBitRateMonoMp3
	Audio24Khz160KBitRateMonoMp3
)

var outputFormatNames = map[AudioOutputFormat]string{
	Riff16Khz16BitMonoPcm:        "riff-16khz-16bit-mono-pcm",
	Raw16Khz16BitMonoPcm:         "raw-16khz-16bit-mono-pcm",
	Raw8Khz8BitMonoMULaw:         "raw-8khz-8bit-mono-mulaw",
	Riff8Khz8BitMonoMULaw:        "riff-8khz-8bit-mono-mulaw",
	Ssml16Khz16BitMonoSilk:       "ssml-16khz-16bit-mono-silk",
	Raw16Khz16BitMonoTrueSilk:    "raw-16khz-16bit-mono-truesilk",
	Ssml16Khz16BitMonoTts:        "ssml-16khz-16bit-mono-tts",
	Audio16Khz128KBitRateMonoMp3: "audio-16khz-128kbitrate-mono-mp3",
	Audio16Khz64KBitRateMonoMp3:  "audio-16khz-64kbitrate-mono-mp3",
	Audio16Khz32KBitRateMonoMp3:  "audio-16khz-32kbitrate-mono-mp3",
	Audio16Khz16KbpsMonoSiren:    "audio-16khz-16kbps-mono-siren",
	Riff16Khz16KbpsMonoSiren:     "riff-16khz-16kbps-mono-siren",
	Raw24Khz16BitMonoPcm:         "raw-24khz-16bit-mono-pcm",
	Riff24Khz16BitMonoPcm:        "riff-24khz-16bit-mono-pcm",
	Audio24Khz48KBitRateMonoMp3:  "audio-24khz-48kbitrate-mono-mp3",
	Audio24Khz96KBitRateMonoMp3:  "audio-24khz-96kbitrate-mono-mp3",
	Audio24Khz160KBitRateMonoMp3: "audio-24khz-160kbitrate-mono-mp3",
}

// String returns the X-Microsoft-OutputFormat header value. Unknown values
// fall back to the default format.
func (f AudioOutputFormat) String() string {
	if name, ok := outputFormatNames[f]; ok {
		return name
	}
	return outputFormatNames[Riff16Khz16BitMonoPcm]
}

// ContentType is the media type of audio in this format.
func (f AudioOutputFormat) ContentType() string {
	name := f.String()
	switch {
	case strings.HasSuffix(name, "-mp3"):
		return "audio/mpeg"
	case strings.HasPrefix(name, "riff-"):
		return "audio/wav"
	}
	return "application/octet-stream"
}

func (f AudioOutputFormat) MarshalText() ([]byte, error) {
	name, ok := outputFormatNames[f]
	if !ok {
		return nil, fmt.Errorf("unknown audio output format %d", int(f))
	}
	return []byte(name), nil
}

func (f *AudioOutputFormat) UnmarshalText(text []byte) error {
	for value, name := range outputFormatNames {
		if name == string(text) {
			*f = value
			return nil
		}
	}
	return fmt.Errorf("unknown audio output format %q", text)
}

// RecognitionFormat selects the shape of a recognition result.
type RecognitionFormat int

const (
	// Simple returns the display text only.
	Simple RecognitionFormat = iota
	// Detailed adds the NBest alternatives with confidence scores.
	Detailed
)

var recognitionFormatNames = map[RecognitionFormat]string{
	Simple:   "simple",
	Detailed: "detailed",
}

func (f RecognitionFormat) String() string {
	if name, ok := recognitionFormatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("RecognitionFormat(%d)", int(f))
}

func (f *RecognitionFormat) UnmarshalText(text []byte) error {
	for value, name := range recognitionFormatNames {
		if strings.EqualFold(name, string(text)) {
			*f = value
			return nil
		}
	}
	return fmt.Errorf("unknown recognition format %q", text)
}

// ProfanityMode controls how profanity appears in recognised text.
type ProfanityMode int

const (
	Masked ProfanityMode = iota
	Removed
	Raw
)

var profanityNames = map[ProfanityMode]string{
	Masked:  "masked",
	Removed: "removed",
	Raw:     "raw",
}

func (p ProfanityMode) String() string {
	if name, ok := profanityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("ProfanityMode(%d)", int(p))
}

func (p *ProfanityMode) UnmarshalText(text []byte) error {
	for value, name := range profanityNames {
		if strings.EqualFold(name, string(text)) {
			*p = value
			return nil
		}
	}
	return fmt.Errorf("unknown profanity mode %q", text)
}

// RecognitionStatus is the outcome reported by the recognition service.
type RecognitionStatus int

const (
	Success RecognitionStatus = iota
	NoMatch
	InitialSilenceTimeout
	BabbleTimeout
	Error
	EndOfDictation
)

var recognitionStatusNames = map[RecognitionStatus]string{
	Success:               "Success",
	NoMatch:               "NoMatch",
	InitialSilenceTimeout: "InitialSilenceTimeout",
	BabbleTimeout:         "BabbleTimeout",
	Error:                 "Error",
	EndOfDictation:        "EndOfDictation",
}

func (s RecognitionStatus) String() string {
	if name, ok := recognitionStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("RecognitionStatus(%d)", int(s))
}

func (s RecognitionStatus) MarshalText() ([]byte, error) {
	name, ok := recognitionStatusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown recognition status %d", int(s))
	}
	return []byte(name), nil
}

func (s *RecognitionStatus) UnmarshalText(text []byte) error {
	for value, name := range recognitionStatusNames {
		if name == string(text) {
			*s = value
			return nil
		}
	}
	return fmt.Errorf("unknown recognition status %q", text)
}

// RecognitionAlternative is one candidate transcription in a detailed
// result.
type RecognitionAlternative struct {
	Confidence float64 `json:"Confidence"`
	Lexical    string  `json:"Lexical"`
	ITN        string  `json:"ITN"`
	MaskedITN  string  `json:"MaskedITN"`
	Display    string  `json:"Display"`
}

// RecognitionResult is the response of a speech recognition request. Offset
// and Duration are in 100-nanosecond units.
type RecognitionResult struct {
	RecognitionStatus RecognitionStatus        `json:"RecognitionStatus"`
	Offset            int64                    `json:"Offset"`
	Duration          int64                    `json:"Duration"`
	DisplayText       string                   `json:"DisplayText,omitempty"`
	NBest             []RecognitionAlternative `json:"NBest,omitempty"`
}

// Text returns the recognised text. Detailed results carry no DisplayText,
// so the best alternative is used instead.
func (r RecognitionResult) Text() string {
	if r.DisplayText != "" {
		return r.DisplayText
	}
	if len(r.NBest) > 0 {
		return r.NBest[0].Display
	}
	return ""
}
