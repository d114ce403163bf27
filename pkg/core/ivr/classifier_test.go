package ivr

import "testing"

func TestClassify_ExclusiveIVRDominatesVoicemail(t *testing.T) {
	c := NewClassifier()

	// Digit prompts must win even when voicemail phrases co-occur.
	transcripts := []string{
		"Press 1 to leave a message. Press 2 for sales.",
		"To leave a message press 1, to return to the main menu press 2.",
		"Please enter your mailbox number followed by the pound key.",
	}
	for _, tr := range transcripts {
		mode, conf := c.Classify(tr)
		if mode != ModeIVR {
			t.Errorf("Classify(%q) = %v, want IVR", tr, mode)
		}
		if conf <= 0 || conf > 1 {
			t.Errorf("Classify(%q) confidence = %v, want in (0,1]", tr, conf)
		}
	}
}

func TestClassify_Voicemail(t *testing.T) {
	c := NewClassifier()

	transcripts := []string{
		"Hi, you've reached John. Leave a message after the beep.",
		"We are unable to take your call right now. Please leave your name and number.",
		"You have reached the voicemail of Dana Smith.",
	}
	for _, tr := range transcripts {
		if mode, _ := c.Classify(tr); mode != ModeVoicemail {
			t.Errorf("Classify(%q) = %v, want VOICEMAIL", tr, mode)
		}
	}
}

func TestClassify_Conversation(t *testing.T) {
	c := NewClassifier()

	transcripts := []string{
		"Hello? This is Maria speaking, how can I help you today?",
		"Hey, what can I do for you?",
		"Good afternoon, front desk, how may I help?",
	}
	for _, tr := range transcripts {
		if mode, _ := c.Classify(tr); mode != ModeConversation {
			t.Errorf("Classify(%q) = %v, want CONVERSATION", tr, mode)
		}
	}
}

func TestClassify_GeneralIVR(t *testing.T) {
	c := NewClassifier()

	mode, _ := c.Classify("Thank you for calling Acme Corp. Your call is important to us. Please hold.")
	if mode != ModeIVR {
		t.Errorf("hold message classified as %v, want IVR", mode)
	}
}

func TestClassify_IVRErrorPhrases(t *testing.T) {
	c := NewClassifier()

	mode, _ := c.Classify("Invalid entry. Please try again.")
	if mode != ModeIVR {
		t.Errorf("retry phrase classified as %v, want IVR", mode)
	}
}

func TestClassify_ShortTranscriptIsUnknown(t *testing.T) {
	c := NewClassifier()

	for _, tr := range []string{"", "  ", "um", "ok"} {
		mode, conf := c.Classify(tr)
		if mode != ModeUnknown || conf != 0 {
			t.Errorf("Classify(%q) = %v/%v, want UNKNOWN/0", tr, mode, conf)
		}
	}
}

func TestClassify_NoMatchesIsUnknown(t *testing.T) {
	c := NewClassifier()

	mode, conf := c.Classify("the quick brown fox jumps over the lazy dog")
	if mode != ModeUnknown {
		t.Errorf("mode = %v, want UNKNOWN", mode)
	}
	if conf != 0 {
		t.Errorf("confidence = %v, want 0", conf)
	}
}

func TestDetectMenuContext(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		transcript string
		want       MenuContext
	}{
		{"If you know your party's extension, dial it now.", ContextExtension},
		{"Please enter your PIN number followed by pound.", ContextPIN},
		{"Please enter your account number.", ContextPIN},
		{"Leave a message after the beep.", ContextVoicemail},
		{"Press 1 for sales, press 2 for support.", ContextMenu},
		{"Thanks for holding, someone will be with you shortly.", ContextUnknown},
		{"The weather today is sunny.", ContextUnknown},
	}
	for _, tt := range tests {
		if got := c.DetectMenuContext(tt.transcript); got != tt.want {
			t.Errorf("DetectMenuContext(%q) = %v, want %v", tt.transcript, got, tt.want)
		}
	}
}

func TestClassificationModeString(t *testing.T) {
	tests := []struct {
		mode ClassificationMode
		want string
	}{
		{ModeIVR, "IVR"},
		{ModeConversation, "CONVERSATION"},
		{ModeVoicemail, "VOICEMAIL"},
		{ModeUnknown, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.mode, got, tt.want)
		}
	}
}
