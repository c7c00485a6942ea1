package zkabacus

import "crypto/rand"

// randRead is a thin indirection over crypto/rand.Read so that tests can
// substitute a deterministic source without touching package-level state.
var randRead = rand.Read
