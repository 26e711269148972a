package agent

import (
	"encoding/json"
	"fmt"
)

// DeclineSentence is the fixed redirect used for non-health questions. It
// appears in both the system instruction and the per-message style
// directive so the model cannot drift from it.
const DeclineSentence = "I'm Bio-Twin, your health assistant. I can only help with health, wellness, and medical questions. Please ask me something related to your health!"

// OverloadMessage is returned when every backend tier reports quota
// exhaustion.
const OverloadMessage = "I'm a bit overloaded right now. Please give me a moment and ask me again shortly."

// systemInstruction restricts the agent to health topics.
const systemInstruction = `You are Bio-Twin, a specialized health assistant. Your primary purpose is to help with health, wellness, medical, and fitness-related questions.

STRICT RULES:
1. You ARE allowed to respond to greetings (e.g., "Hello", "Hi", "Hey there") and basic social pleasantries (e.g., "How are you?", "Nice to meet you"). Be friendly and then pivot to health if appropriate.
2. For knowledge-based questions, ONLY answer if they are related to: health, medicine, fitness, nutrition, mental wellness, biomarkers, symptoms, treatments, appointments, supplements, exercise, sleep, stress management, and general wellbeing.
3. If a user asks a factual or advisory question about ANY topic outside of health (e.g., weather, sports, politics, entertainment, coding, etc.), politely decline and redirect them to health topics.
4. Your response to non-health factual/knowledge questions should be: "` + DeclineSentence + `"
5. Always maintain a friendly, supportive, and professional tone.`

// styleDirective is appended to every reactive message.
const styleDirective = `

IMPORTANT:
1. Reply in a friendly, short, and pointwise way.
2. Respond naturally to greetings or "How are you?".
3. If a question is clearly about a non-health topic (e.g., coding, sports, history), politely decline with: "` + DeclineSentence + `"`

// buildReplyMessage decorates the user's text with the context block, the
// scheduling hint when the caller supplied its wall-clock, and the style
// directive.
func buildReplyMessage(message string, context map[string]any, timezone string) string {
	if len(context) == 0 {
		return message + styleDirective
	}

	contextJSON, err := json.Marshal(context)
	if err != nil {
		contextJSON = []byte(fmt.Sprintf("%v", context))
	}

	datetimeInfo := ""
	if currentDateTime, ok := context["currentDateTime"].(string); ok && currentDateTime != "" {
		datetimeInfo = fmt.Sprintf(
			"\n\nCURRENT DATE/TIME INFO:\n- Current time: %s\n- Timezone: %s\nUse this as reference when scheduling appointments. 'Tomorrow' means the day after this date.\n",
			currentDateTime, timezone,
		)
	}

	return fmt.Sprintf("CONTEXT START\n%s%s\nCONTEXT END\n\nUser Question: %s%s",
		contextJSON, datetimeInfo, message, styleDirective)
}

// buildRunPrompt builds the proactive analyze-and-act directive.
func buildRunPrompt(healthContext map[string]any) string {
	contextJSON, err := json.MarshalIndent(healthContext, "", "  ")
	if err != nil {
		contextJSON = []byte(fmt.Sprintf("%v", healthContext))
	}

	return fmt.Sprintf(`You are Bio-Twin, an active health agent.
Analyze the following health data:
%s

If you detect any issues (like Low Vitamin D, High Stress, etc.),
you MUST use your available tools to take action immediately.

For example:
- If Vitamin D is low, book an appointment or suggest sunlight (block calendar).
- If tired, block calendar for nap.

Do not just give advice; ACT using the tools.`, contextJSON)
}
