// Package coaching turns activities into AI coaching recommendations.
package coaching

import (
	"encoding/json"
	"fmt"

	"example.com/fitcoach/internal/domain"
)

const promptTemplate = `Analyze this fitness activity and provide a detailed recommendation in the following EXACT JSON format:
{
  "analysis": {
    "overall": "Overall assessment of the activity",
    "pace": "Evaluation of the pace and suggested improvements if necessary",
    "heartRate": "Heart rate analysis and insights on cardiovascular performance",
    "caloriesBurned": "Comment on the calories burned and dietary recommendations if applicable"
  },
  "improvements": [
    {
      "area": "Area of improvement (e.g. pace, endurance, technique)",
      "recommendation": "Specific recommendation to improve in this area"
    }
  ],
  "suggestions": [
    {
      "workout": "Workout suggestion based on the activity data",
      "nutrition": "Nutritional advice to complement the activity"
    }
  ],
  "safetyTips": [
    "Safety tip relevant to the activity performed"
  ]
}

Analyze the following activity data:
Activity Type: %s
Duration (minutes): %d
Calories Burned: %d
Additional Metrics: %s

Respond with the JSON document only, without any additional text or formatting.
`

// BuildPrompt renders the fixed coaching prompt for an activity. The output is
// byte-identical for equal activities: metrics are rendered as JSON, whose map
// keys are always sorted.
func BuildPrompt(activity domain.Activity) string {
	return fmt.Sprintf(promptTemplate,
		activity.ActivityType,
		activity.Duration,
		activity.CaloriesBurned,
		renderMetrics(activity.AdditionalMetrics),
	)
}

func renderMetrics(metrics map[string]any) string {
	if len(metrics) == 0 {
		return "{}"
	}
	encoded, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Sprintf("%v", metrics)
	}
	return string(encoded)
}
