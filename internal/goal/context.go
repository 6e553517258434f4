package goal

import (
	"maps"

	"github.com/dshills/luabuild/internal/automation"
	"github.com/dshills/luabuild/internal/logging"
	"github.com/dshills/luabuild/internal/script"
)

// Binding names, in the order CreateContext installs them.
const (
	BindingProject    = "project"
	BindingProperties = "properties"
	BindingBaseDir    = "basedir"
	BindingLog        = "log"
	BindingFail       = "fail"
)

// CreateContext assembles the bindings every goal hands to scripts:
// project, properties, basedir, log, the magic objects (ant) and fail.
func (r *Runner) CreateContext() (*script.Context, error) {
	cfg := r.cfg
	bindings := script.NewContext()

	bindings.Set(BindingProject, map[string]any{
		"name":     cfg.Project.Name,
		"version":  cfg.Project.Version,
		"basedir":  cfg.Project.BaseDir,
		"builddir": cfg.Project.BuildDir,
	})
	bindings.Set(BindingProperties, maps.Clone(cfg.Properties))
	bindings.Set(BindingBaseDir, cfg.Project.BaseDir)
	bindings.Set(BindingLog, logging.Facade(r.logger))

	if factory, ok := r.runtime.(script.MagicFactory); ok {
		for _, kind := range script.MagicContexts() {
			obj, err := factory.CreateMagic(kind)
			if err != nil {
				return nil, err
			}
			if b, ok := obj.(*automation.Builder); ok {
				r.seedProject(b.Project())
			}
			bindings.Set(kind.String(), obj)
		}
	} else {
		r.logger.Debug("runtime %T provides no magic objects", r.runtime)
	}

	bindings.Set(BindingFail, FailTarget{})
	return bindings, nil
}

// seedProject copies configured properties into the build project. Values
// the project already holds win.
func (r *Runner) seedProject(p *automation.Project) {
	for _, name := range r.cfg.PropertyNames() {
		p.SetProperty(name, r.cfg.Properties[name])
	}
}
