// Package models contains GORM persistence models whose stored shape differs
// from the domain shape. Most aggregates map to their tables directly; a model
// lives here when persistence needs a representation the domain should not
// carry, such as serialized JSON columns.
package models
