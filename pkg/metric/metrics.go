package metric

import "time"

type Metrics interface {
	Increment(key string, keyValueTags ...string)
	Duration(key string, duration time.Duration, keyValueTags ...string)
}

type stub struct{}

func NewStub() Metrics {
	return stub{}
}

func (stub) Increment(string, ...string) {}

func (stub) Duration(string, time.Duration, ...string) {}
