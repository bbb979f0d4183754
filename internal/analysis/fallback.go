package analysis

import "strings"

const (
	FallbackConfidence   = 40
	FallbackCompleteness = 40

	fallbackPrimaryProbability = 70
	fallbackOtherProbability   = 30
	otherCausesName            = "Other causes not fully specified"
)

// fallbackCategory maps general symptom vocabulary to a working hypothesis.
// It is deliberately broader and less alarming than the emergency registry.
type fallbackCategory struct {
	keywords    []string
	condition   string
	description string
	risk        RiskLevel
	questions   []string
	redFlags    []string
	selfCare    []string
}

var fallbackCategories = []fallbackCategory{
	{
		keywords:    []string{"chest pain", "tightness in chest", "chest tightness"},
		condition:   "Possible cardiac or respiratory discomfort",
		description: "Chest discomfort has many causes, some of which need prompt in-person assessment.",
		risk:        RiskHigh,
		questions: []string{
			"Does the discomfort spread to your arm, jaw or back?",
			"Does it get worse with exertion or when you breathe in deeply?",
		},
		redFlags: []string{
			"Pain spreading to the arm, jaw or back",
			"Sweating, nausea or fainting together with chest discomfort",
		},
	},
	{
		keywords:    []string{"shortness of breath", "breathless", "wheez"},
		condition:   "Breathing-related symptoms",
		description: "Breathlessness can come from the airways, lungs or heart and should be examined.",
		risk:        RiskHigh,
		questions: []string{
			"Does the breathlessness happen at rest or only with activity?",
			"Do you have asthma, heart or lung conditions?",
		},
		redFlags: []string{
			"Blue or grey lips",
			"Unable to speak in full sentences",
		},
	},
	{
		keywords:    []string{"fever", "chills", "temperature"},
		condition:   "Infection-related illness",
		description: "Fever usually points to an infection, most often viral and self-limiting.",
		risk:        RiskMedium,
		questions: []string{
			"What is the highest temperature you have measured?",
			"Do you have a cough, sore throat, urinary symptoms or a rash?",
		},
		redFlags: []string{
			"Fever above 39.5°C (103°F) that does not come down",
			"Stiff neck, confusion or a rash that does not fade under pressure",
		},
		selfCare: []string{
			"Rest and drink plenty of fluids",
			"Monitor your temperature twice a day",
		},
	},
	{
		keywords:    []string{"headache", "migraine"},
		condition:   "Primary headache (tension-type or migraine)",
		description: "Most headaches are benign, but new or changing patterns deserve a review.",
		risk:        RiskMedium,
		questions: []string{
			"Where is the headache located and how would you describe the pain?",
			"Do you have visual changes, nausea or sensitivity to light?",
		},
		redFlags: []string{
			"Sudden, worst-ever headache",
			"Headache with weakness, confusion or trouble speaking",
		},
		selfCare: []string{
			"Rest in a quiet, dark room",
			"Stay hydrated and keep regular meals and sleep",
		},
	},
	{
		keywords:    []string{"stomach", "abdominal", "vomit", "nausea", "diarrh"},
		condition:   "Gastrointestinal upset",
		description: "Stomach symptoms are often caused by infection, diet or irritation of the gut.",
		risk:        RiskMedium,
		questions: []string{
			"Where exactly is the pain and does it move?",
			"Can you keep fluids down, and have you seen blood in vomit or stool?",
		},
		redFlags: []string{
			"Blood in vomit or black stools",
			"Severe pain that keeps getting worse or a rigid abdomen",
		},
		selfCare: []string{
			"Take small sips of fluids frequently",
			"Eat bland food once nausea settles",
		},
	},
}

var generalCategory = fallbackCategory{
	condition:   "General symptom pattern",
	description: "The description is too general to point to a specific cause.",
	risk:        RiskMedium,
	questions: []string{
		"Which symptom bothers you the most right now?",
	},
}

var commonFallbackQuestions = []string{
	"When did these symptoms start, and have they been getting better or worse?",
}

// ClassifyFallback builds a deliberately low-confidence assessment from the
// latest user text without any network dependency. The same text always
// yields the same result.
func ClassifyFallback(latestUserText string) Result {
	text := strings.ToLower(latestUserText)

	cat := generalCategory
	for _, c := range fallbackCategories {
		if containsAny(text, c.keywords) {
			cat = c
			break
		}
	}

	risk := cat.risk
	if risk == RiskMedium && (strings.Contains(text, "severe") || strings.Contains(text, "worst pain")) {
		risk = RiskHigh
	}

	triage := TriageRoutineConsultation
	if risk == RiskHigh {
		triage = TriageUrgentCare
	}

	questions := append(copyList(commonFallbackQuestions), cat.questions...)

	return Result{
		PossibleConditions: []Condition{
			{Name: cat.condition, Probability: fallbackPrimaryProbability, Description: cat.description},
			{
				Name:        otherCausesName,
				Probability: fallbackOtherProbability,
				Description: "Other explanations cannot be ruled out without more detail or an examination.",
			},
		},
		Reasoning: []string{
			"The analysis service is currently unavailable, so this is a local keyword-based approximation.",
			"Your description should be reviewed by a clinician before drawing conclusions.",
		},
		ConfidenceScore:         FallbackConfidence,
		InformationCompleteness: FallbackCompleteness,
		FollowUpQuestions:       questions,
		RiskLevel:               risk,
		Recommendation:          recommendationsFor(risk),
		TriageRecommendation:    triage,
		RedFlags:                copyList(cat.redFlags),
		SelfCareTips:            copyList(cat.selfCare),
		CommonTriggers:          []string{},
		TrackingAdvice: []string{
			"Write down when symptoms occur, how long they last and what makes them better or worse.",
		},
		ClinicalNextSteps: []string{"Clinical evaluation by a healthcare professional"},
		Source:            SourceFallback,
	}
}

func recommendationsFor(risk RiskLevel) []string {
	if risk == RiskHigh || risk == RiskCritical {
		return []string{
			"Seek medical care today at an urgent care centre or with your doctor.",
			"Call emergency services if symptoms suddenly get worse.",
		}
	}
	return []string{
		"Book an appointment with your doctor to discuss these symptoms.",
		"Seek care sooner if new or worsening symptoms appear.",
	}
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
