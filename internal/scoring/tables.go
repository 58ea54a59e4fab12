package scoring

// RiskLevel is the categorical label derived from a total score.
type RiskLevel string

const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskModerate RiskLevel = "MODERATE"
	RiskLow      RiskLevel = "LOW"
	RiskMinimal  RiskLevel = "MINIMAL"
)

// Valid reports whether l is one of the five known levels.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskCritical, RiskHigh, RiskModerate, RiskLow, RiskMinimal:
		return true
	}
	return false
}

// Factor bounds.
const (
	MaxEconomic = 40
	MaxHealth   = 30
	MaxSocial   = 20
	MaxUrgency  = 10
	MaxTotal    = 100
)

// IncomeBand maps an income per capita strictly below Below to Points.
type IncomeBand struct {
	Below  float64
	Points int
}

// StatusEffect is how a matched social-status rule changes the economic factor.
type StatusEffect int

const (
	// StatusFloor raises the factor to at least Value.
	StatusFloor StatusEffect = iota
	// StatusAdd adds Value.
	StatusAdd
	// StatusSubtract subtracts Value, floored at zero.
	StatusSubtract
)

// StatusRule is one group of the economic status adjustments. Only the first
// group with a matching term applies.
type StatusRule struct {
	Terms  []string
	Effect StatusEffect
	Value  int
}

// CountBand awards Points when a count is at least Min.
type CountBand struct {
	Min    int
	Points int
}

// KeywordRule awards Points when any term occurs in the text.
type KeywordRule struct {
	Terms  []string
	Points int
}

// Ladder awards the points of the first matching step, capped at Cap.
type Ladder struct {
	Steps []KeywordRule
	Cap   int
}

// DayBand awards Points when more than Over days have elapsed.
type DayBand struct {
	Over   int
	Points int
}

// RiskThreshold assigns Level to totals at or above Min.
type RiskThreshold struct {
	Min   float64
	Level RiskLevel
}

// CompositionBonus holds the household-composition health bonuses.
type CompositionBonus struct {
	ManyChildren  int
	ChildrenBonus int
	ElderlyBonus  int
	DisabledBonus int
}

// RecommendationTexts holds the emitted recommendation strings.
type RecommendationTexts struct {
	EmergencyFinancial string
	JobTraining        string
	RegularEconomic    string
	MedicalReferral    string
	MonthlyCheckups    string
	QuarterlyFollowUp  string
	SafeHousing        string
	UrgentDistribution string
	ContinueMonitoring string
}

// Rules is the full set of scoring tables. Treat a Rules value as read-only
// once handed to a Calculator; DefaultRules returns a fresh copy each call.
type Rules struct {
	IncomeBands []IncomeBand
	StatusRules []StatusRule

	MinimalHealth   int
	VisitBands      []CountBand
	DrugSeverity    map[string]int
	DefaultSeverity int
	SeverityCap     int
	Conditions      []KeywordRule
	Composition     CompositionBonus

	Housing   Ladder
	Migration Ladder
	Stability Ladder

	NeverAided   int
	UrgencyBands []DayBand
	UrgencyFloor int

	RiskThresholds []RiskThreshold

	EconomicHigh      int
	EconomicModerate  int
	HealthHigh        int
	HealthModerate    int
	SocialHousing     int
	UrgencyHigh       int
	PrecariousHousing []string
	Texts             RecommendationTexts

	LocalConfidence float64
}

// DefaultRules returns the production scoring tables.
func DefaultRules() Rules {
	return Rules{
		IncomeBands: []IncomeBand{
			{Below: 100, Points: 40},
			{Below: 200, Points: 32},
			{Below: 350, Points: 24},
			{Below: 500, Points: 16},
			{Below: 800, Points: 8},
		},
		StatusRules: []StatusRule{
			{Terms: []string{"sans emploi", "chômage"}, Effect: StatusFloor, Value: 30},
			{Terms: []string{"retraité", "migrant"}, Effect: StatusAdd, Value: 5},
			{Terms: []string{"travail informel", "informal"}, Effect: StatusAdd, Value: 6},
			{Terms: []string{"ouvrier", "worker"}, Effect: StatusSubtract, Value: 3},
		},

		MinimalHealth: 5,
		VisitBands: []CountBand{
			{Min: 10, Points: 20},
			{Min: 5, Points: 15},
			{Min: 2, Points: 10},
			{Min: 1, Points: 5},
		},
		DrugSeverity: map[string]int{
			"antibiotic":        2,
			"antibiotique":      2,
			"antihypertensive":  2,
			"antidiabetic":      2,
			"corticosteroid":    3,
			"corticostéroïde":   3,
			"psychotropic":      2,
			"immunosuppressant": 3,
			"chemotherapy":      5,
			"chimiothérapie":    5,
			"insulin":           3,
			"vaccine":           1,
			"vaccin":            1,
			"pain reliever":     1,
			"paracetamol":       1,
			"ibuprofen":         1,
			"antiviral":         3,
		},
		DefaultSeverity: 1,
		SeverityCap:     9,
		Conditions: []KeywordRule{
			{Terms: []string{"diabète", "diabetes"}, Points: 5},
			{Terms: []string{"hypertension", "cardiac"}, Points: 5},
			{Terms: []string{"tuberculose", "tuberculosis"}, Points: 8},
			{Terms: []string{"hiv", "sida"}, Points: 10},
			{Terms: []string{"cancer"}, Points: 10},
			{Terms: []string{"paralysie", "paralysis"}, Points: 7},
		},
		Composition: CompositionBonus{
			ManyChildren:  3,
			ChildrenBonus: 2,
			ElderlyBonus:  3,
			DisabledBonus: 5,
		},

		Housing: Ladder{Cap: 10, Steps: []KeywordRule{
			{Terms: []string{"bidonville", "tente"}, Points: 10},
			{Terms: []string{"précaire", "insalubre"}, Points: 8},
			{Terms: []string{"locataire"}, Points: 6},
			{Terms: []string{"propriétaire"}, Points: 1},
		}},
		Migration: Ladder{Cap: 5, Steps: []KeywordRule{
			{Terms: []string{"returnee", "returning"}, Points: 5},
			{Terms: []string{"external", "immigrant"}, Points: 4},
			{Terms: []string{"internal"}, Points: 2},
		}},
		Stability: Ladder{Cap: 5, Steps: []KeywordRule{
			{Terms: []string{"mère célibataire", "single mother"}, Points: 5},
			{Terms: []string{"orphelin", "orphan"}, Points: 5},
			{Terms: []string{"veuve", "widow"}, Points: 4},
			{Terms: []string{"famille nombreuse"}, Points: 3},
		}},

		NeverAided: 10,
		UrgencyBands: []DayBand{
			{Over: 180, Points: 10},
			{Over: 120, Points: 8},
			{Over: 60, Points: 6},
			{Over: 30, Points: 4},
			{Over: 14, Points: 2},
		},
		UrgencyFloor: 1,

		RiskThresholds: []RiskThreshold{
			{Min: 80, Level: RiskCritical},
			{Min: 65, Level: RiskHigh},
			{Min: 50, Level: RiskModerate},
			{Min: 35, Level: RiskLow},
		},

		EconomicHigh:      30,
		EconomicModerate:  15,
		HealthHigh:        20,
		HealthModerate:    10,
		SocialHousing:     15,
		UrgencyHigh:       8,
		PrecariousHousing: []string{"précaire", "precarious"},
		Texts: RecommendationTexts{
			EmergencyFinancial: "Priority: Emergency financial aid",
			JobTraining:        "Explore job training or employment programs",
			RegularEconomic:    "Regular economic support needed",
			MedicalReferral:    "Immediate medical referral required",
			MonthlyCheckups:    "Monthly health check-ups recommended",
			QuarterlyFollowUp:  "Quarterly medical follow-up",
			SafeHousing:        "Urgent: Find safe housing solution",
			UrgentDistribution: "Schedule urgent aid distribution",
			ContinueMonitoring: "Continue regular monitoring and support",
		},

		LocalConfidence: 0.85,
	}
}
