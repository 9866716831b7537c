// Package scheduler triggers the background jobs (nightly promotion, habit
// backfill, Telegram digest) on cron or interval schedules.
//
// Jobs are upserted by name, never overlap with themselves and run with an
// optional timeout. Timezone changes restart the cron runner.
package scheduler
