// Package planner turns stored tasks, calendar entries and recurring
// templates into the views dayboard serves.
//
// It has three parts:
//   - Expand: lazy, restartable expansion of a recurring template over one month.
//   - Promote: idempotent copy of today's calendar entries and due template
//     firings into the Today / Next Day / This Week / This Month lists.
//   - Dashboard: the four date buckets with cross-bucket exclusions.
//
// Every call takes the owner id explicitly and "today" comes from an
// injectable Clock; the package never reads session state.
package planner
