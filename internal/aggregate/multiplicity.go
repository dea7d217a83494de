package aggregate

import (
	"strings"

	"github.com/vk/hookwire/internal/capture"
	"github.com/vk/hookwire/internal/fault"
)

// AtMostOne returns the single element of caps, the zero value when caps is
// empty, or a declaration error naming every capture when there are more.
// Builders call it from Build to enforce a multiplicity rule.
func AtMostOne[C capture.Capture](what string, caps []C) (C, error) {
	var zero C
	switch len(caps) {
	case 0:
		return zero, nil
	case 1:
		return caps[0], nil
	}
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = describe(c)
	}
	return zero, fault.Declaration("aggregate.AtMostOne", "at most one %s is allowed, found %s", what, strings.Join(names, " and "))
}

func describe(c capture.Capture) string {
	if mc, ok := c.(capture.MemberCapture); ok {
		return mc.Member().String()
	}
	return c.String()
}
