package classify

import (
	"context"
	"strings"

	"github.com/reachforge/outreachd/internal/candidate"
)

// InboundMessage is a raw inbound event from the mail channel
type InboundMessage struct {
	CandidateID string `json:"candidate_id,omitempty"`
	RoleID      string `json:"role_id,omitempty"`
	FromEmail   string `json:"from_email,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Body        string `json:"body"`
	Unsubscribe bool   `json:"unsubscribe,omitempty"` // explicit opt-out signal (list-unsubscribe, UI action)
}

// Result is the three-way classification outcome the scheduler consumes
type Result struct {
	Sentiment candidate.Sentiment `json:"sentiment"`
	Text      string              `json:"text"`
}

// Classifier turns an inbound message into a classified outcome. Production
// deployments plug in an external service; the core depends only on this
// contract.
type Classifier interface {
	Classify(ctx context.Context, msg InboundMessage) (Result, error)
	DetectUnsubscribe(msg InboundMessage) bool
}

var unsubscribePhrases = []string{
	"unsubscribe",
	"remove me",
	"stop emailing",
	"stop contacting",
	"take me off",
	"opt out",
	"do not contact",
}

var interestedPhrases = []string{
	"interested",
	"sounds great",
	"sounds good",
	"tell me more",
	"more details",
	"let's talk",
	"lets talk",
	"happy to chat",
	"schedule a call",
	"book a call",
	"keen to hear",
}

var notInterestedPhrases = []string{
	"not interested",
	"no thanks",
	"no thank you",
	"not looking",
	"not a fit",
	"happy where i am",
	"happy in my current",
	"pass on this",
}

// KeywordClassifier is a deliberately simple fallback so the engine runs
// standalone. Anything it cannot place lands on ambiguous, which holds the
// candidate for human triage rather than guessing.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the fallback classifier
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (k *KeywordClassifier) Classify(ctx context.Context, msg InboundMessage) (Result, error) {
	body := strings.ToLower(msg.Body)

	// Negative phrases are checked first: "not interested" contains
	// "interested"
	for _, phrase := range notInterestedPhrases {
		if strings.Contains(body, phrase) {
			return Result{Sentiment: candidate.SentimentNotInterested, Text: msg.Body}, nil
		}
	}
	for _, phrase := range interestedPhrases {
		if strings.Contains(body, phrase) {
			return Result{Sentiment: candidate.SentimentInterested, Text: msg.Body}, nil
		}
	}
	return Result{Sentiment: candidate.SentimentAmbiguous, Text: msg.Body}, nil
}

func (k *KeywordClassifier) DetectUnsubscribe(msg InboundMessage) bool {
	if msg.Unsubscribe {
		return true
	}
	body := strings.ToLower(msg.Body)
	for _, phrase := range unsubscribePhrases {
		if strings.Contains(body, phrase) {
			return true
		}
	}
	return false
}
