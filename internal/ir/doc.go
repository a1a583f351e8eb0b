// Package ir provides the shared record types for flowledger.
//
// This package contains type definitions and the canonical payload encoding
// only. All other internal packages import ir; ir imports nothing internal.
// This keeps ir the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Cards, lists and boards are interned by upstream (external) id
//   - CardAction and ListStat records are immutable once committed
//   - Ordering always uses (at, seq); seq is a logical clock that breaks
//     timestamp ties deterministically
//   - All JSON tags use snake_case
package ir
