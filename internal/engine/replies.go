package engine

import (
	"fmt"
	"strings"

	"github.com/veluna/stylebot/internal/domain"
)

const (
	msgWelcomeMenu = "Hi! I'm your personal stylist. What would you like to do?\n" +
		"1. Discover your best colors (send a selfie)\n" +
		"2. Virtual try-on (send a full-body photo)\n" +
		"3. End chat"

	msgPhotoPrompt   = "Great! Send me a clear selfie in natural light and I'll analyze your skin tone."
	msgPhotoReprompt = "I still need a photo for that. Please send a selfie, or reply 3 from the menu to end the chat."

	msgAnalysisFailed = "Sorry, I couldn't analyze that photo. Please send it again, or try a brighter one."

	msgBodyPhotoPrompt   = "Send me a full-body photo and I'll show you how different garments look on you."
	msgBodyPhotoReprompt = "I need a full-body photo to do a try-on. Please send one as an image."

	msgGarmentPrompt   = "Got it! Describe the garment you'd like to try on (e.g. \"red floral summer dress\")."
	msgGarmentReprompt = "Tell me what you'd like to try on, a short description works best."

	msgCompositionFailed = "Sorry, the try-on didn't work this time. Describe the garment again and I'll retry with your photo."

	msgTryOnResult = "Here's your virtual try-on!\n1. Try another garment\n2. Back to menu"
	msgTryOnOptions = "Reply 1 to try another garment or 2 to go back to the menu."

	msgBudgetInvalid = "Please pick a budget:\n1. Under $50\n2. $50-$150\n3. Over $150\n4. Back to menu"

	msgSkinToneMissing = "I don't have your color analysis yet, so I can't pick products for you. " +
		"Reply 4 for the menu and choose option 1 to analyze a selfie first."

	msgSearchFailed = "Sorry, product search is unavailable right now. Let's start over:\n" + msgWelcomeMenu

	msgUpgradeAnalysis = "You've used all the free color analyses. Upgrade to premium for unlimited analyses!"
	msgUpgradeTryOn    = "You've used all the free try-ons. Upgrade to premium for unlimited try-ons!"

	msgFarewell = "Thanks for chatting! Message me any time you want style advice."
)

// msgAnalysisResult renders the analysis outcome plus the budget menu that
// moves the flow forward.
func msgAnalysisResult(a *domain.ToneAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your skin tone: %s", a.Tone)
	if a.Undertone != "" {
		fmt.Fprintf(&b, " (%s undertone)", a.Undertone)
	}
	b.WriteString("\n")
	if len(a.RecommendedColors) > 0 {
		fmt.Fprintf(&b, "Colors that suit you: %s\n", strings.Join(a.RecommendedColors, ", "))
	}
	if len(a.ColorsToAvoid) > 0 {
		fmt.Fprintf(&b, "Better to avoid: %s\n", strings.Join(a.ColorsToAvoid, ", "))
	}
	b.WriteString("\nWhat's your budget?\n1. Under $50\n2. $50-$150\n3. Over $150\n4. Back to menu")
	return b.String()
}

// msgProductList renders the ranked product list.
func msgProductList(products []domain.Product, budget domain.BudgetRange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here's what I found for you (%s):\n", budget.Label)
	for i, p := range products {
		fmt.Fprintf(&b, "%d. %s", i+1, p.Title)
		if p.Brand != "" {
			fmt.Fprintf(&b, " by %s", p.Brand)
		}
		if p.Price != "" {
			fmt.Fprintf(&b, " - %s", p.Price)
		}
		if p.Link != "" {
			fmt.Fprintf(&b, "\n   %s", p.Link)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nReply 3 to go back to the menu.")
	return b.String()
}

func msgNoProducts(budget domain.BudgetRange) string {
	return fmt.Sprintf("I couldn't find anything %s right now. Try another budget:\n"+
		"1. Under $50\n2. $50-$150\n3. Over $150\n4. Back to menu", budget.Label)
}
