package keys

const (
	// notation dictionary for key formats:
	// c   = conversation
	// cp  = conversation by participant set
	// u   = user
	// m   = message (scoped under a conversation) / message locator
	// idem = idempotency token
	// r   = reaction
	// n   = notification
	// rp  = report
	// ap  = appeal, apo = open appeal marker
	// pv  = profile view
	// ib  = icebreaker answer
	// All segments are separated by ":"; variable segments are query-escaped
	// so user supplied values never contain the separator.

	ConversationKey     = "c:%s"          // c:<conv>
	ConversationSetKey  = "cp:%s"         // cp:<participant_set>
	UserConversationKey = "u:%s:c:%s"     // u:<user>:c:<conv>
	MessageKey          = "c:%s:m:%s"     // c:<conv>:m:<seq>
	MessageLocatorKey   = "m:%s"          // m:<msg_id>
	IdempotencyKey      = "idem:%s:%s:%s" // idem:<conv>:<sender>:<token>
	ReactionKey         = "r:%s:%s:%s"    // r:<msg_id>:<user>:<emoji>
	NotificationKey     = "n:%s:%s"       // n:<user>:<notif_id>
	ReportKey           = "rp:%s"         // rp:<report_id>
	AppealKey           = "ap:%s:%s"      // ap:<user>:<appeal_id>
	OpenAppealKey       = "apo:%s:%s"     // apo:<user>:<action>
	ProfileViewKey      = "pv:%s:%s:%s"   // pv:<profile>:<ts>:<viewer>
	IcebreakerAnswerKey = "ib:%s:%s"      // ib:<user>:<question>

	// padding widths (fixed for lexicographic ordering)
	TSPadWidth  = 20 // e.g. %020d
	SeqPadWidth = 20 // e.g. %020d

	// system keys
	SystemVersionKey = "system:version"
)

// Prefixes used for range scans and key summaries.
const (
	PrefixConversation = "c:"
	PrefixIdempotency  = "idem:"
	PrefixNotification = "n:"
	PrefixReaction     = "r:"
	PrefixReport       = "rp:"
	PrefixAppeal       = "ap:"
	PrefixProfileView  = "pv:"
	PrefixIcebreaker   = "ib:"
)
