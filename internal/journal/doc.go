// Package journal records what was asked of a signal chain: current and
// frequency setpoints, overload advisories and configuration changes.
//
// The journal is write-only history. Engine state always comes from the
// instruments themselves; nothing here is replayed on start-up.
package journal
