// Package notifier sends the daily digest: each user with a linked Telegram
// chat receives the open items of their Today bucket.
//
// # Delivery
//
// Messages go through a Sender. The production Sender wraps a telebot bot in
// offline mode (no polling); tests use an in-memory fake. Sends are rate
// limited and retried with jittered exponential backoff.
//
// # Once per day
//
// Each digest claims the "telegram_digest_sent" execution marker for the
// user and day before sending, so overlapping runs and restarts do not
// double-send. A failed send releases the marker.
package notifier
