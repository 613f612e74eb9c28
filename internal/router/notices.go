package router

// User-visible replies.
const (
	NoticeNoSession        = "I don't have a signup in progress for you. Use the /subscribe command in a server to start one."
	NoticeExpired          = "Your signup session expired. Use /subscribe again to start over."
	NoticeInvalidPhone     = "That doesn't look like a valid US or Canadian phone number. Please send 10 digits, e.g. (234) 567-8900."
	NoticeGuildUnreachable = "I can't access that server anymore, so I couldn't finish your signup."
	NoticeNotMember        = "You're no longer a member of that server, so I couldn't finish your signup."
	NoticeStorageError     = "Something went wrong saving your information. Please try again later."
	NoticeGenericFailure   = "Something went wrong while handling that command. Please try again later."

	NoticeDMsDisabled      = "I couldn't send you a direct message. Enable direct messages from server members (or start a chat with me) and run /subscribe again."
	NoticeUnsubscribed     = "You've been unsubscribed from SMS announcements for this server."
	NoticeNotSubscribed    = "You weren't subscribed to SMS announcements for this server."
	NoticeAdminOnly        = "Only server administrators can use this command."
	NoticeChannelRequired  = "Please choose a text channel."
	NoticeCarrierOptOut    = "Your number replied STOP, so you've been unsubscribed from SMS announcements. Use /subscribe to sign up again."
	NoticeDirectOnlyPrompt = "Use /subscribe in a server to sign up for SMS announcements."
)

const (
	noticeSignupPromptFmt  = "Reply with the phone number that should receive SMS announcements from **%s**. This signup expires in %d minutes."
	noticeSignupStartedFmt = "Check your direct messages to finish signing up for SMS announcements from %s."
	noticeSubscribedFmt    = "You're subscribed! Announcements from %s will be texted to %s. Use /unsubscribe to stop."
	noticeChannelSetFmt    = "SMS announcements will now be relayed from %s."
	noticeStatusFmt        = "Announcement channel: %s\nSubscribers: %d"
	noticeSummaryFmt       = "📱 SMS delivered: %d/%d"
	broadcastFmt           = "[%s] %s: %s"
)
