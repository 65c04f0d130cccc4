package login

// Messages are MarkdownV1; remote text interpolated into them is escaped with format.Plain.
const (
	TextAlreadyLoggedIn = "✅ You are already logged in!"
	TextPhonePrompt     = "Please send your phone number with country code\nExample: `+12345678900`"
	TextInvalidPhone    = "❌ Please provide a valid phone number starting with +"
	TextProcessing      = "🔄 Processing..."
	TextProcessingPhone = "🔄 Processing phone number..."
	TextCodeSent        = "✅ Verification code sent to your Telegram account.\n\nPlease enter the code you received like `1 2 3 4 5` (space separated)."
	TextPhoneError      = "❌ Error: %s\nPlease try again with /login."
	TextDataMissing     = "❌ Session data missing. Start again with /login."
	TextVerifyingCode   = "🔄 Verifying code..."
	TextLoggedIn        = "✅ Logged in successfully!!"
	TextPasswordPrompt  = "🔒 Two-step verification is enabled. Please enter your password:"
	TextCodeRejected    = "❌ %s. Please try again with /login."
	TextSignInError     = "❌ Error signing in: %s"
	TextSessionExpired  = "❌ Session expired. Start again with /login."
	TextVerifyingPass   = "🔄 Verifying password..."
	TextWrongPassword   = "❌ Incorrect password: %s\nPlease try again:"
	TextGenericError    = "❌ An error occurred: %s"
	TextCancelled       = "✅ Login process cancelled. Use /login to start again."
	TextNothingToCancel = "No active login process to cancel."

	TextLogoutProcessing = "🔄 Processing logout request..."
	TextNoSession        = "❌ No active session found for your account."
	TextRemoteTerminated = "✅ Telegram session terminated successfully. Removing from database..."
	TextRemoteFailed     = "⚠️ Error terminating Telegram session: %s\nStill removing from database..."
	TextLoggedOut        = "✅ Logged out successfully!!"
	TextLogoutError      = "❌ An error occurred during logout: %s"
)
