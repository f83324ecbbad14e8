package graph

import "regexp"

var identRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// validIdent guards every label, relationship type and property name that
// is interpolated into a query.
func validIdent(s string) bool { return identRE.MatchString(s) }
