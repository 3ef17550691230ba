// Package authority resolves how much standing an actor has with respect to
// a capability.
//
// Levels form a total order where lower values carry more authority:
//
//	self < clubowner < owner < lover < mistress < whitelist < friend < public
//
// Each capability has a Setting with a minimum level, an independent
// self-access grant for the local actor, and a floor below which the minimum
// can never be relaxed. Resolution fails closed: unknown actors, lookup
// errors and unconfigured capabilities all resolve to the least privileged
// outcome.
package authority
