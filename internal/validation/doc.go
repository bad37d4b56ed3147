// Package validation checks create and update payloads against per-collection
// rules before the gateway writes them.
//
// A RuleSet is built once at startup and never mutated, so it is shared by
// reference between concurrent requests. Validation is additive: fields
// without a rule pass through untouched, and a collection without rules
// accepts any payload.
//
// Every violation is collected, so a client can fix all problems in one
// round trip:
//
//	err := rules.Validate("users", payload, false)
//	var verrs validation.Errors
//	if errors.As(err, &verrs) {
//	    for _, v := range verrs { ... }
//	}
package validation
