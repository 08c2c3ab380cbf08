package pros

import "regexp"

const (
	Electrician       = "electrician"
	Plumber           = "plumber"
	HVAC              = "hvac_contractor"
	Roofer            = "roofing_contractor"
	ApplianceStore    = "appliance_store"
	GeneralContractor = "general_contractor"
)

type rule struct {
	re       *regexp.Regexp
	category string
}

// Specific trades come first so generic wording never hides them; the last
// rule matches everything.
var rules = []rule{
	{regexp.MustCompile(`(?i)(smoke|fire.*alarm|wiring|circuit|breaker|socket)`), Electrician},
	{regexp.MustCompile(`(?i)(leak|pipe|faucet|sink|toilet|sewer)`), Plumber},
	{regexp.MustCompile(`(?i)(hvac|air.?condition|furnace|vent)`), HVAC},
	{regexp.MustCompile(`(?i)(roof|shingle|gutter)`), Roofer},
	{regexp.MustCompile(`(?i)(appliance|fridge|washer|dryer)`), ApplianceStore},
	{regexp.MustCompile(`(?s).*`), GeneralContractor},
}

// Classify maps free text to a Places API business type. First match wins.
func Classify(text string) string {
	for _, r := range rules {
		if r.re.MatchString(text) {
			return r.category
		}
	}
	return GeneralContractor
}
