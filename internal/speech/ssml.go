package speech

import (
	"encoding/xml"
	"fmt"
)

type ssmlSpeak struct {
	XMLName xml.Name  `xml:"speak"`
	Version string    `xml:"version,attr"`
	Lang    string    `xml:"xml:lang,attr"`
	Voice   ssmlVoice `xml:"voice"`
}

type ssmlVoice struct {
	Lang   string `xml:"xml:lang,attr"`
	Gender string `xml:"xml:gender,attr"`
	Name   string `xml:"name,attr"`
	Text   string `xml:",chardata"`
}

// buildSSML renders the synthesis document. The document language is always
// en-US; the voice element carries the spoken language.
func buildSSML(p TextToSpeechParameters) ([]byte, error) {
	gender := Female
	if p.Gender == Male {
		gender = Male
	}

	doc := ssmlSpeak{
		Version: "1.0",
		Lang:    "en-US",
		Voice: ssmlVoice{
			Lang:   p.Language,
			Gender: gender.String(),
			Name:   p.VoiceName,
			Text:   p.Text,
		},
	}

	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("rendering SSML: %w", err)
	}

	return out, nil
}
