// Package dataflow is a coordination runtime for dataflow programs
// expressed as a graph of step-collections, item-collections, and
// tag-collections. Putting a tag into a tag-collection prescribes step
// instances in one or more step-collections; a step instance reads
// values by key from item-collections ("gets") and writes values or
// further tags ("puts"). The runtime creates, schedules, and retires
// step instances without a user-specified order, resolves data
// dependencies so a step only runs once its gets can succeed,
// reclaims item memory by reference count, and detects global
// quiescence so a Context.Wait call returns exactly when all
// transitively implied work is done.
package dataflow
