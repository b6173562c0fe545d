package sim

import (
	"fmt"
	"regexp"
)

var namePattern = regexp.MustCompile(
	`^[A-Za-z0-9_]+(\[\d+\])*(\.[A-Za-z0-9_]+(\[\d+\])*)*$`)

// NameMustBeValid panics if the name is not an acceptable element name.
// Names are dot-separated tokens, where each token is alphanumeric and may
// carry one or more numeric indices (e.g., "Core.RS[2].Top").
func NameMustBeValid(name string) {
	if !namePattern.MatchString(name) {
		panic(fmt.Sprintf("invalid name %q", name))
	}
}
