package notify

import (
	"hash/fnv"
	"math"
	"strings"

	"github.com/baechuer/newsroom/internal/domain"
)

type Topic int

const (
	TopicGeneral Topic = iota
	TopicTravel
	TopicBusiness
	TopicSports
	TopicWeather
	TopicTech
)

// keywords are matched as substrings of the lower-cased category name, in
// this order.
var topicKeywords = []struct {
	topic Topic
	words []string
}{
	{TopicTravel, []string{"سفر", "سياحة", "رحلات", "travel", "tourism"}},
	{TopicBusiness, []string{"اقتصاد", "أعمال", "المال", "business", "economy", "finance"}},
	{TopicSports, []string{"رياضة", "كرة", "sport", "football"}},
	{TopicWeather, []string{"طقس", "مناخ", "weather", "climate"}},
	{TopicTech, []string{"تقنية", "تكنولوجيا", "تكنولوجي", "tech"}},
}

func TopicOf(categoryName string) Topic {
	name := strings.ToLower(strings.TrimSpace(categoryName))
	if name == "" {
		return TopicGeneral
	}
	for _, tk := range topicKeywords {
		for _, w := range tk.words {
			if strings.Contains(name, w) {
				return tk.topic
			}
		}
	}
	return TopicGeneral
}

func (t Topic) Emojis() []string {
	switch t {
	case TopicTravel:
		return []string{"✈️", "🌍", "🏖️", "🗺️"}
	case TopicBusiness:
		return []string{"💼", "📈", "💰", "🏦"}
	case TopicSports:
		return []string{"⚽", "🏆", "🏀", "🏅"}
	case TopicWeather:
		return []string{"🌤️", "⛅", "🌧️", "🌡️"}
	case TopicTech:
		return []string{"💻", "📱", "🤖", "🚀"}
	default:
		return []string{"📰"}
	}
}

// CategoryEmoji picks one emoji of the category's set. seed keeps the choice
// stable for a given article.
func CategoryEmoji(categoryName, seed string) string {
	set := TopicOf(categoryName).Emojis()
	if len(set) == 1 {
		return set[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return set[h.Sum32()%uint32(len(set))]
}

const maxTitleRunes = 60

func truncateTitle(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxTitleRunes {
		return s
	}
	return string(r[:maxTitleRunes]) + "..."
}

// PersonalizationScore is 0.5 plus type and priority boosts, capped at 1.
func PersonalizationScore(t domain.NotificationType, p domain.Priority) float64 {
	score := 0.5

	switch t {
	case domain.NotificationAuthorFollow:
		score += 0.3
	case domain.NotificationNewComment, domain.NotificationDailyDigest:
		score += 0.2
	case domain.NotificationRecommendation:
		score += 0.1
	case domain.NotificationNewArticle:
	}

	switch p {
	case domain.PriorityUrgent:
		score += 0.2
	case domain.PriorityHigh:
		score += 0.1
	case domain.PriorityMedium, domain.PriorityLow:
	}

	return math.Min(1, math.Round(score*100)/100)
}

func channelsFor(p domain.Priority) []domain.DeliveryChannel {
	if p == domain.PriorityHigh || p == domain.PriorityUrgent {
		return []domain.DeliveryChannel{domain.ChannelInApp, domain.ChannelPush}
	}
	return []domain.DeliveryChannel{domain.ChannelInApp}
}
