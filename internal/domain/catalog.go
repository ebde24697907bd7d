package domain

// ToneAnalysis is the result of a skin-tone photo analysis.
type ToneAnalysis struct {
	Tone              string   `json:"tone"`
	Undertone         string   `json:"undertone"`
	RecommendedColors []string `json:"recommended_colors"`
	ColorsToAvoid     []string `json:"colors_to_avoid"`
}

// Product is a single shopping search result.
type Product struct {
	Title string `json:"title"`
	Price string `json:"price"`
	Brand string `json:"brand"`
	Link  string `json:"link"`
}

// BudgetRange bounds a product search in whole dollars. Max == 0 means
// unbounded above.
type BudgetRange struct {
	Label string `json:"label"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
}

// BudgetRangeForChoice maps a menu choice ("1".."3") to its price range.
func BudgetRangeForChoice(choice string) (BudgetRange, bool) {
	switch choice {
	case "1":
		return BudgetRange{Label: "under $50", Min: 0, Max: 50}, true
	case "2":
		return BudgetRange{Label: "$50-$150", Min: 50, Max: 150}, true
	case "3":
		return BudgetRange{Label: "over $150", Min: 150, Max: 0}, true
	}
	return BudgetRange{}, false
}
