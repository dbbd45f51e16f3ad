package advisory

import (
	"fmt"
	"strings"
)

// ComposeFrostSMS builds the SMS body for one farm. It returns "" when there
// is nothing actionable to send.
func ComposeFrostSMS(farmName string, buckets []BucketRisk, footer string) string {
	msgs := Messages(buckets)
	if len(msgs) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Frost warning for your farm %q:\n", farmName)
	for _, m := range msgs {
		b.WriteString("- ")
		b.WriteString(m)
		b.WriteByte('\n')
	}
	if footer != "" {
		b.WriteString(footer)
	}
	return strings.TrimRight(b.String(), "\n")
}
