package vmmetrics

import (
	"fmt"
	"io"

	"github.com/google/pprof/profile"

	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/vmevents"
)

// DumpEventProfile encodes the recent-events ring as a pprof profile,
// one sample per event, located at a synthetic frame named after the
// event kind (one location per kind and address) and labelled with the
// faulting/evicted address — a postmortem aid for eyeballing where
// eviction or fault pressure concentrated, written by cmd/vmctl
// alongside diag.Dump when a scenario fails.
func DumpEventProfile(w io.Writer, recent []vmevents.Event) error {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "events", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "events", Unit: "count"},
		Period:     1,
	}

	funcs := map[string]*profile.Function{}
	locs := map[string]*profile.Location{}
	var nextFuncID, nextLocID uint64

	locFor := func(kind, va string) *profile.Location {
		name := fmt.Sprintf("%s@%s", kind, va)
		if loc, ok := locs[name]; ok {
			return loc
		}
		fn := funcs[kind]
		if fn == nil {
			nextFuncID++
			fn = &profile.Function{ID: nextFuncID, Name: kind}
			funcs[kind] = fn
			p.Function = append(p.Function, fn)
		}
		nextLocID++
		loc := &profile.Location{ID: nextLocID, Line: []profile.Line{{Function: fn}}}
		locs[name] = loc
		p.Location = append(p.Location, loc)
		return loc
	}

	for _, e := range recent {
		kind := e.Kind.String()
		va := fmt.Sprintf("%#x", e.VA)
		loc := locFor(kind, va)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{1},
			Label:    map[string][]string{"address": {va}},
		})
	}

	return p.Write(w)
}
