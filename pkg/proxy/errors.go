package proxy

import "fmt"

// Kind identifies one of the four aggregated capability kinds.
type Kind string

const (
	KindTool             Kind = "tool"
	KindResource         Kind = "resource"
	KindResourceTemplate Kind = "resource template"
	KindPrompt           Kind = "prompt"
)

// UnknownCapabilityError reports a routing miss: the requested name or URI
// has no owning peer after the relevant catalogs were built. It is never used
// for failures raised by an owning peer during delegation; those propagate to
// the caller unchanged.
type UnknownCapabilityError struct {
	Kind Kind
	Key  string
}

func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("proxy: unknown %s %q", e.Kind, e.Key)
}
