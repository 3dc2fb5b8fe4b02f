// Package metrics holds the instrumentation types shared by the layer
// Metrics interfaces, so that core packages stay free of any backend.
package metrics

// Timer measures one operation, started when the timer was created:
//
//	defer m.HandlerDuration(msgType).ObserveDuration()
type Timer interface {
	ObserveDuration()
}

// TimerFunc adapts a function to Timer.
type TimerFunc func()

func (f TimerFunc) ObserveDuration() { f() }
