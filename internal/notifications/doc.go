// Package notifications delivers job lifecycle events via pluggable notifiers.
//
// The default implementation publishes to the Telegram Bot API using the bot
// token configured in config.toml and gracefully degrades to a no-op when
// notifications are disabled. Each job tracks the chat message announcing it,
// so later lifecycle events edit that message in place instead of flooding
// the chat.
//
// Extend this package if you need alternative transports; all workflow code
// depends only on the simple Service interface.
package notifications
