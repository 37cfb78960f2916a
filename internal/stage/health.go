package stage

import (
	"context"
	"strings"
)

// Health summarizes the readiness of a generator.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// Pinger is implemented by capability backends that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// probe reports name as healthy when every configured backend answers. Nil
// backends are reported as missing.
func probe(ctx context.Context, name string, backends ...any) Health {
	var problems []string
	for _, backend := range backends {
		if backend == nil {
			problems = append(problems, "capability not configured")
			continue
		}
		if p, ok := backend.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				problems = append(problems, err.Error())
			}
		}
	}
	if len(problems) > 0 {
		return Unhealthy(name, strings.Join(problems, "; "))
	}
	return Healthy(name)
}
