package app

const (
	textSetBotUsage   = "⚠️ Please provide a bot token. Usage: `/setbot token`"
	textBotSaved      = "✅ Bot token saved successfully."
	textBotRemoved    = "✅ Bot token removed successfully."
	textBotFailed     = "❌ Could not start the bot, token discarded: %s"
	textCommandFailed = "❌ An error occurred: %s"
	textAdminOnly     = "⛔ This command is only available to the bot admin."
	textUnknownCmd    = "Unknown command. Use /login to sign in or /logout to sign out."

	textStatus = "*Account status*\n" +
		"Login step: `%s`\n" +
		"Session stored: %s\n" +
		"Bot token stored: %s\n" +
		"Bot running: %s\n" +
		"Client running: %s"

	textStats = "*Stats*\n" +
		"Logins in progress: %d\n" +
		"User bots: %d\n" +
		"User clients: %d\n" +
		"Userbot: %s\n" +
		"Failed sends: %d"
)

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
