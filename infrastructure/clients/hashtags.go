package clients

import "strings"

// AppendHashtags appends the hashtags the description does not already mention.
func AppendHashtags(description string, hashtags []string) string {
	var missing []string
	lower := strings.ToLower(description)
	for _, h := range hashtags {
		if !strings.Contains(lower, h) {
			missing = append(missing, h)
		}
	}
	switch {
	case len(missing) == 0:
		return description
	case description == "":
		return strings.Join(missing, " ")
	default:
		return description + "\n\n" + strings.Join(missing, " ")
	}
}
