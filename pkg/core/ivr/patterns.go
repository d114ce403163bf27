package ivr

import "regexp"

// Pattern tables for transcript classification. They are compiled once at
// package init and shared read-only by every Classifier; nothing mutates
// them after startup.
//
// The split into five categories matters: the classifier's priority rule
// treats any exclusive-IVR or IVR-error hit as decisive, so phrases that can
// appear in both menu prompts and voicemail greetings ("leave a message")
// must never be listed under exclusiveIVR.

var exclusiveIVRPatterns = compileAll(
	`press\s+(\d|zero|one|two|three|four|five|six|seven|eight|nine|star|pound)`,
	`for\s+[\w\s]{1,40}?,?\s+press`,
	`to\s+[\w\s]{1,40}?,?\s+press`,
	`press\s+[\w\s]{1,20}?\s+for\b`,
	`enter\s+your\s+`,
	`enter\s+the\s+`,
	`followed\s+by\s+(the\s+)?(pound|hash)`,
	`dial\s+[\w\s]{1,20}?\s+now`,
	`if\s+you\s+know\s+your\s+party'?s\s+extension`,
	`using\s+your\s+(telephone\s+)?keypad`,
)

var ivrErrorPatterns = compileAll(
	`invalid\s+(entry|input|selection|option)`,
	`(that|this)\s+is\s+not\s+a\s+valid`,
	`not\s+a\s+valid\s+(entry|option|selection|extension)`,
	`please\s+try\s+(again|your\s+call\s+again)`,
	`i\s+didn'?t\s+(get|catch|understand)\s+that`,
	`(sorry|i'?m\s+sorry),?\s+i\s+did\s*n[o']?t\s+understand`,
	`let'?s\s+try\s+(that\s+)?again`,
)

var generalIVRPatterns = compileAll(
	`main\s+menu`,
	`menu\s+options`,
	`please\s+hold`,
	`please\s+stay\s+on\s+the\s+line`,
	`your\s+call\s+is\s+(very\s+)?important`,
	`next\s+available\s+(agent|representative|operator)`,
	`call\s+(may|will)\s+be\s+(monitored|recorded)`,
	`(office|business)\s+hours`,
	`thank\s+you\s+for\s+calling`,
	`please\s+listen\s+carefully`,
	`options\s+have\s+(recently\s+)?changed`,
	`at\s+any\s+time\s+during\s+this`,
	`para\s+espa[nñ]ol`,
)

var humanPatterns = compileAll(
	`how\s+(can|may)\s+i\s+help`,
	`what\s+can\s+i\s+(do|help)`,
	`this\s+is\s+\w+\s+speaking`,
	`\bspeaking,?\s+how\b`,
	`\bhello+\?`,
	`^(hi|hey|hello)\b[.,!\s]*$`,
	`(hi|hey|hello),?\s+(this\s+is|you'?ve\s+got)\s+\w+[.!\s]*$`,
	`one\s+(moment|second|sec),?\s+(please|let\s+me)`,
	`can\s+i\s+(get|have)\s+your\s+name`,
	`who\s+am\s+i\s+speaking\s+with`,
)

var voicemailPatterns = compileAll(
	`leave\s+(a|your)\s+(message|name\s+and\s+number)`,
	`after\s+the\s+(beep|tone)`,
	`at\s+the\s+(beep|tone)`,
	`voice\s?mail`,
	`mailbox`,
	`(is|are)\s+not\s+available`,
	`unable\s+to\s+(take|answer)\s+your\s+call`,
	`record\s+your\s+message`,
	`can'?t\s+(come|get)\s+to\s+the\s+phone`,
	`you'?ve\s+reached\s+the\s+(phone|line|desk|office)?\s*of\b`,
	`we'?ll\s+(get\s+back|return\s+your\s+call)`,
)

// Menu-context keyword tables, consulted in declaration order by
// DetectMenuContext. First category with a hit wins.
var (
	extensionKeywords = []string{"extension", "party's extension", "extension number"}
	pinKeywords       = []string{"pin number", "your pin", "passcode", "pass code", "security code", "account number", "social security", "date of birth", "zip code"}
	vmContextKeywords = []string{"voicemail", "voice mail", "leave a message", "after the beep", "after the tone", "record your message"}
	menuKeywords      = []string{"press", "menu", "dial", "say or select"}
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

func countMatches(patterns []*regexp.Regexp, text string) int {
	n := 0
	for _, p := range patterns {
		if p.MatchString(text) {
			n++
		}
	}
	return n
}
