package streambus

import (
	"context"
	"sort"

	"github.com/arloliu/streambus/serial"
)

// Built-in command names. These are served by every element and cannot be
// re-registered.
const (
	// CmdVersion reports the element's client identity.
	CmdVersion = "version"
	// CmdCommandList reports the element's registered command names.
	CmdCommandList = "command_list"
	// CmdHealthcheck probes the element's health predicate.
	CmdHealthcheck = "healthcheck"
)

// registerBuiltins installs the commands every element serves.
func (e *Element) registerBuiltins() {
	e.handlers.Store(CmdVersion, &command{
		handler: e.versionCommand,
		timeout: e.handlerTimeout,
		builtin: true,
	})
	e.handlers.Store(CmdCommandList, &command{
		handler: e.commandListCommand,
		timeout: e.handlerTimeout,
		builtin: true,
	})
	e.handlers.Store(CmdHealthcheck, &command{
		handler: e.healthcheckCommand,
		timeout: e.handlerTimeout,
		builtin: true,
	})
}

func (e *Element) versionCommand(_ context.Context, _ *Request) (*Response, error) {
	return Encoded(map[string]string{
		"language": Language,
		"version":  Version,
	}, serial.MethodMsgpack)
}

func (e *Element) commandListCommand(_ context.Context, _ *Request) (*Response, error) {
	names := make([]string, 0, e.handlers.Size())
	e.handlers.Range(func(name string, _ *command) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)

	return Encoded(names, serial.MethodMsgpack)
}

func (e *Element) healthcheckCommand(ctx context.Context, _ *Request) (*Response, error) {
	if e.healthcheck != nil {
		if err := e.healthcheck(ctx); err != nil {
			return nil, err
		}
	}

	return &Response{}, nil
}
