package kiln

import (
	"github.com/kilnjinja/kiln/internal/telemetry"
	"github.com/kilnjinja/kiln/value"
	"github.com/kilnjinja/kiln/vm"
)

// Template is a named, already-resolvable unit of work bound to the
// Environment that compiled it — spec.md §4.6's get_template/from_string
// return value. Compilation itself already happened (and was cached) by the
// time an Environment hands one back; Render just runs the VM.
type Template struct {
	env  *Environment
	name string
}

// Name is the template's loader-relative name, or the synthetic
// "<string:...>" name FromString assigns.
func (t *Template) Name() string { return t.name }

// Render executes the template against vars (a plain Go map, converted via
// value.FromGo field by field / element by element) and returns its output,
// resolving any `{% extends %}` chain first via vm.Render.
func (t *Template) Render(vars map[string]interface{}) (string, error) {
	log := t.env.log.WithCorrelationID()
	log.Event(telemetry.EventRenderStart, "render start", map[string]interface{}{"template": t.name})
	out, err := vm.Render(t.env, t.name, value.GoMap(vars))
	if err != nil {
		log.Errorf(err, "render failed for %q", t.name)
		return "", err
	}
	log.Event(telemetry.EventRenderEnd, "render end", map[string]interface{}{"template": t.name})
	return out, nil
}

// RenderValues is Render's lower-level form for callers that already hold
// value.Value data (e.g. re-rendering a namespace captured from another
// template) instead of plain Go values.
func (t *Template) RenderValues(vars map[string]value.Value) (string, error) {
	return vm.Render(t.env, t.name, vars)
}
