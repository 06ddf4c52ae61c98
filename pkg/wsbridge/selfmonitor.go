package wsbridge

import "strings"

// SelfMonitorPolicy decides whether a container belongs to the control
// plane's own deployment, so its log/event frames can be filtered out of a
// stream before they reach a subscriber. Left unfiltered, streaming the
// platform's own logs would feed the WebSocket traffic those logs describe
// back into itself.
type SelfMonitorPolicy struct {
	// Labels names container labels whose presence (any value) marks a
	// container as the control plane's own.
	Labels []string
	// NamePrefixes matches a container name against any of these prefixes.
	NamePrefixes []string
}

// DefaultSelfMonitorPolicy matches the control plane's own compose/stack
// naming convention and an explicit opt-in label.
func DefaultSelfMonitorPolicy() SelfMonitorPolicy {
	return SelfMonitorPolicy{
		Labels:       []string{"io.harborctl.controlplane"},
		NamePrefixes: []string{"harborctl-controlplane", "controlplane_controlplane"},
	}
}

// Matches reports whether a container with the given name and labels is
// the control plane's own, and should be filtered from self-observed
// streams.
func (p SelfMonitorPolicy) Matches(name string, labels map[string]string) bool {
	for _, key := range p.Labels {
		if _, ok := labels[key]; ok {
			return true
		}
	}
	trimmed := strings.TrimPrefix(name, "/")
	for _, prefix := range p.NamePrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}
