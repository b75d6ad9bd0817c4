// Package iam is the mutating surface of the admin hierarchy: the role store,
// bootstrap, and the subordinate manager.
//
// Every store-backed operation runs inside one transaction, bounded by the
// configured operation timeout. Authorization checks read the actor from the
// same transaction, never from the snapshot cache; the cache exists only for
// UI permission gating.
package iam
