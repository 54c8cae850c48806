package observability

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	observers = map[string]Observer{
		"noop": NoOpObserver{},
	}
	mutex sync.RWMutex
)

// GetObserver returns a registered observer by name. "noop" is always
// registered; "zap" resolves to a ZapObserver over the global zap logger
// unless a custom observer was registered under that name.
func GetObserver(name string) (Observer, error) {
	mutex.RLock()
	defer mutex.RUnlock()

	obs, exists := observers[name]
	if exists {
		return obs, nil
	}
	if name == "zap" {
		return NewZapObserver(zap.L()), nil
	}
	return nil, fmt.Errorf("unknown observer: %s", name)
}

// RegisterObserver adds or replaces a named observer in the global registry.
func RegisterObserver(name string, observer Observer) {
	mutex.Lock()
	defer mutex.Unlock()

	observers[name] = observer
}
