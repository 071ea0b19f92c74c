package scriptloader

import "strings"

// runMode tracks the deferred application bootstrap.
type runMode int

const (
	runModeAuto runMode = iota
	runModeRequested
	runModeRunning
)

func isAppName(fullName string) bool {
	return strings.EqualFold(fullName, "app") || strings.EqualFold(fullName, "application")
}

func (l *Loader) appModule() *Module {
	for _, name := range []string{"app", "application"} {
		if m, ok := l.registry.Module(name); ok {
			return m
		}
	}
	for _, m := range l.registry.modules {
		if isAppName(m.fullName) {
			return m
		}
	}
	return nil
}

// RunApp requests that the module named "app" or "application" run as soon
// as it is ready, even when Debug and Wait suppress the automatic run.
func (l *Loader) RunApp() error {
	if l.runMode == runModeAuto {
		l.runMode = runModeRequested
	}
	return l.tryRunApp()
}

// Running reports whether the app module has executed.
func (l *Loader) Running() bool {
	return l.runMode == runModeRunning
}

func (l *Loader) tryRunApp() error {
	if l.runMode == runModeRunning {
		return nil
	}
	if l.runMode == runModeAuto && l.cfg.Debug && l.cfg.Wait {
		return nil
	}
	app := l.appModule()
	if app == nil {
		return nil
	}

	switch app.Status() {
	case StatusNotLoaded:
		app.Start()
	case StatusReady:
		return app.whenExecutable(func() { l.appStarted(app) })
	case StatusExecuted:
		l.appStarted(app)
	case StatusError:
		return moduleErr(app.fullName, ErrModuleFailed, app.Err())
	}
	return nil
}

func (l *Loader) appStarted(app *Module) {
	if l.runMode == runModeRunning {
		return
	}
	l.runMode = runModeRunning
	l.logger.Info("Application started", "module", app.fullName)
	l.emit(EventTypeAppStarted, map[string]any{"name": app.fullName})
}
