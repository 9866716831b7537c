// Package storage is the relational record store behind dayboard.
//
// It keeps every owner-scoped record (lists, tasks, recurring templates,
// calendar entries, goals and milestones, habits, secret lists), the
// per-owner execution markers that guard bulk promotion, login sessions and
// an append-only audit log. All reads and writes take an explicit owner id.
package storage
