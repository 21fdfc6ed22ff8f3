package service

// Progress is what achievement rules are evaluated against
type Progress struct {
	MessageCount int64
	ActiveDays   int
}

// AchievementRule describes one badge and when it is earned
type AchievementRule struct {
	Name        string
	Description string
	Earned      func(Progress) bool
}

// Achievements is the catalog, evaluated in order
var Achievements = []AchievementRule{
	{
		Name:        "Chat Starter",
		Description: "Send your first message",
		Earned:      func(p Progress) bool { return p.MessageCount >= 1 },
	},
	{
		Name:        "Daily User",
		Description: "Use the bot for 7 consecutive days",
		Earned:      func(p Progress) bool { return p.ActiveDays >= 7 },
	},
	{
		Name:        "Power User",
		Description: "Send 100 messages",
		Earned:      func(p Progress) bool { return p.MessageCount >= 100 },
	},
}
