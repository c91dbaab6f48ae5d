package audit

import (
	"github.com/rs/zerolog"
)

// group collects the fields of a nested log object, skipping zero values. A
// group with no fields is left out of the entry entirely.
type group struct {
	dict *zerolog.Event
}

func (g *group) fields() *zerolog.Event {
	if g.dict == nil {
		g.dict = zerolog.Dict()
	}
	return g.dict
}

func (g *group) str(key, val string) *group {
	if val != "" {
		g.fields().Str(key, val)
	}
	return g
}

func (g *group) strs(key string, vals []string) *group {
	if len(vals) > 0 {
		g.fields().Strs(key, vals)
	}
	return g
}

func (g *group) int(key string, val int) *group {
	if val != 0 {
		g.fields().Int(key, val)
	}
	return g
}

// objects adds vals as an array. A nil slice is skipped but an empty one is
// written, so "nothing detected" is distinguishable from "not attempted".
func objects[T zerolog.LogObjectMarshaler](g *group, key string, vals []T) *group {
	if vals == nil {
		return g
	}

	list := zerolog.Arr()
	for _, v := range vals {
		list.Object(v)
	}
	g.fields().Array(key, list)

	return g
}

// attachTo adds the group to parent under key, if it has any fields.
func (g *group) attachTo(parent *zerolog.Event, key string) {
	if g.dict != nil {
		parent.Dict(key, g.dict)
	}
}
