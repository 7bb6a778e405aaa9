package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	//ErrNoSuchModule no module is registered under the requested name
	ErrNoSuchModule = errors.New("no such module")
	//ErrNoSuchSource the module index has no factory for the requested source
	ErrNoSuchSource = errors.New("no such module source")
	//ErrNoSuchAction the module does not implement the requested action
	ErrNoSuchAction = errors.New("no such action")
)

////////////////////////
// The module runtime //
type Module interface {
	Initialize(p ServiceProvider, b Binder) error
	Act(action string, b Binder) (interface{}, error)

	Stop() error
}

type ModuleFactory func() Module

var ModuleIndex = map[string]ModuleFactory{
	"battery": func() Module { return &BatteryModule{} },
}

//Binder decodes a request or config body into a typed struct
type Binder interface {
	BindData(v interface{}) error
}

//RawBinder a Binder over raw JSON. An empty body leaves v untouched.
type RawBinder json.RawMessage

func (b RawBinder) BindData(v interface{}) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed decoding config: %w", err)
	}
	return nil
}

type ModuleSpec struct {
	Source string          `json:"source"`
	Config json.RawMessage `json:"config"`
}

//ManagerAgent owns the named modules. It is safe for concurrent use, but
//modules are responsible for serializing their own hardware access.
type ManagerAgent struct {
	ServiceProvider ServiceProvider

	mu      sync.RWMutex
	modules map[string]Module
	sources map[string]string
}

func NewManagerAgent(sp ServiceProvider) *ManagerAgent {
	return &ManagerAgent{
		ServiceProvider: sp,
		modules:         map[string]Module{},
		sources:         map[string]string{},
	}
}

//InitializeModules build and initialize every module in specs, then install
//them, replacing (and stopping) any existing module of the same name. If any
//module fails, the ones already built are stopped and nothing is installed.
func (a *ManagerAgent) InitializeModules(specs map[string]ModuleSpec) error {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	built := make(map[string]Module, len(specs))
	discard := func() {
		for _, mod := range built {
			_ = mod.Stop()
		}
	}

	for _, name := range names {
		spec := specs[name]
		factory, ok := ModuleIndex[spec.Source]
		if !ok {
			discard()
			return fmt.Errorf("%w: %s", ErrNoSuchSource, spec.Source)
		}

		mod := factory()
		if err := mod.Initialize(a.ServiceProvider, RawBinder(spec.Config)); err != nil {
			_ = mod.Stop()
			discard()
			return fmt.Errorf("failed to initialize module %s: %w", name, err)
		}
		built[name] = mod
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, name := range names {
		if old, ok := a.modules[name]; ok {
			if err := old.Stop(); err != nil {
				logrus.WithError(err).WithField("module", name).Warn("failed stopping replaced module")
			}
		}
		a.modules[name] = built[name]
		a.sources[name] = specs[name].Source
		logrus.WithFields(logrus.Fields{"module": name, "source": specs[name].Source}).Info("initialized module")
	}
	return nil
}

func (a *ManagerAgent) Act(module string, action string, body Binder) (interface{}, error) {
	a.mu.RLock()
	mod, ok := a.modules[module]
	a.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchModule, module)
	}
	return mod.Act(action, body)
}

//Modules the source of every module, by name
func (a *ManagerAgent) Modules() map[string]string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]string, len(a.sources))
	for name, source := range a.sources {
		out[name] = source
	}
	return out
}

//Stop stop every module, returning the first error
func (a *ManagerAgent) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(a.modules))
	for name := range a.modules {
		names = append(names, name)
	}
	sort.Strings(names)

	var first error
	for _, name := range names {
		if err := a.modules[name].Stop(); err != nil && first == nil {
			first = fmt.Errorf("failed stopping module %s: %w", name, err)
		}
		delete(a.modules, name)
		delete(a.sources, name)
	}
	return first
}
