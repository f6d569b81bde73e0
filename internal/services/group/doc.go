// Package group creates groups, distributes group keys and handles group
// messages.
//
// Group messages are sealed under one symmetric key held by every member. The
// key reaches members as key-share records in the distributor's slot, each
// one an ephemeral envelope addressed to a single member.
package group
