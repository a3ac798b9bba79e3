package generation

// 返回给用户的文本
const (
	MsgLimitReached     = "❌ You have reached your limit for today (%d songs)."
	MsgQuotaUnavailable = "❌ Could not check your daily limit, please try again later."
	MsgNoServers        = "🚨 All Suno servers are out of credits or unavailable. Please try again later."
	MsgBusy             = "⏳ Your previous song is still being generated."
	MsgGenerateFailed   = "❌ Error generating music."
	MsgNoAudio          = "❌ Could not get audio."
	MsgStillGenerating  = "🔄 Still generating..."
	MsgTimedOut         = "❌ The song was not created in time."
	MsgDownloadFailed   = "❌ The generated audio file could not be found."
	MsgSendFailed       = "❌ Failed to send audio file."
	MsgCancelled        = "❌ Song generation was cancelled."
	MsgDelivered        = "✅ Your song is ready!"
	MsgAllowed          = "🎶 Write a description of the song!"
)
