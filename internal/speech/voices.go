package speech

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Voice is a named synthesis preset.
type Voice struct {
	Name         string            `yaml:"name"`
	VoiceName    string            `yaml:"voice"`
	Language     string            `yaml:"language"`
	Gender       Gender            `yaml:"gender"`
	OutputFormat AudioOutputFormat `yaml:"format"`
}

// Apply fills the voice settings of params from the preset, keeping the
// text.
func (v Voice) Apply(params TextToSpeechParameters) TextToSpeechParameters {
	params.VoiceName = v.VoiceName
	params.Language = v.Language
	params.Gender = v.Gender
	params.OutputFormat = v.OutputFormat
	return params
}

// VoiceCatalog holds the voice presets loaded from configuration. It is
// read-only once loaded.
type VoiceCatalog struct {
	voices map[string]Voice
}

type voiceFile struct {
	Voices []Voice `yaml:"voices"`
}

// LoadVoiceCatalog reads voice presets from a YAML file of the form:
//
//	voices:
//	  - name: narrator
//	    voice: en-GB-RyanNeural
//	    language: en-GB
//	    gender: male
//	    format: audio-16khz-32kbitrate-mono-mp3
func LoadVoiceCatalog(path string) (*VoiceCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening voice catalog: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	// reject typos rather than silently ignoring a setting
	dec.KnownFields(true)

	var file voiceFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("voice catalog %s parsing failed: %w", path, err)
	}

	return NewVoiceCatalog(file.Voices...)
}

// NewVoiceCatalog builds a catalog from presets. Names are matched
// case-insensitively and must be unique; a preset must name a voice.
func NewVoiceCatalog(voices ...Voice) (*VoiceCatalog, error) {
	catalog := &VoiceCatalog{voices: make(map[string]Voice, len(voices))}

	for _, v := range voices {
		key := strings.ToLower(strings.TrimSpace(v.Name))
		if key == "" {
			return nil, fmt.Errorf("voice preset for %q has no name", v.VoiceName)
		}
		if v.VoiceName == "" {
			return nil, fmt.Errorf("voice preset %q has no voice", v.Name)
		}
		if _, exists := catalog.voices[key]; exists {
			return nil, fmt.Errorf("duplicate voice preset name: %q", v.Name)
		}
		if v.Language == "" {
			v.Language = DefaultLanguage
		}
		catalog.voices[key] = v
	}

	return catalog, nil
}

// Lookup returns the preset with the given name.
func (c *VoiceCatalog) Lookup(name string) (Voice, bool) {
	if c == nil {
		return Voice{}, false
	}
	v, ok := c.voices[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// Names returns the preset names in sorted order.
func (c *VoiceCatalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.voices))
	for _, v := range c.voices {
		names = append(names, v.Name)
	}
	slices.Sort(names)
	return names
}
