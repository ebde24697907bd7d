package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/veluna/stylebot/internal/domain"
)

// handlerFunc dispatches one inbound event against one state and returns the
// transition outcome. Handlers never persist anything themselves; side
// effects are declared on the outcome and applied by the engine.
type handlerFunc func(ctx context.Context, e *Engine, user *domain.User, sess *domain.Session, ev domain.InboundEvent) outcome

var stateHandlers = map[domain.State]handlerFunc{
	domain.StateWelcome:                handleWelcome,
	domain.StateAwaitingPhoto:          handleAwaitingPhoto,
	domain.StateAwaitingTryOnPhoto:     handleAwaitingTryOnPhoto,
	domain.StateAwaitingBudget:         handleAwaitingBudget,
	domain.StateAwaitingClothingChoice: handleAwaitingClothingChoice,
	domain.StateShowingTryOnResult:     handleShowingTryOnResult,
	domain.StateShowingProducts:        handleShowingProducts,
	domain.StateEnded:                  handleEnded,
}

func handleWelcome(_ context.Context, _ *Engine, _ *domain.User, _ *domain.Session, ev domain.InboundEvent) outcome {
	switch strings.TrimSpace(ev.Text) {
	case "1":
		return outcome{
			next:         domain.StateAwaitingPhoto,
			clearContext: true,
			replies:      []reply{{text: msgPhotoPrompt, kind: domain.KindText}},
		}
	case "2":
		return outcome{
			next:         domain.StateAwaitingTryOnPhoto,
			clearContext: true,
			replies:      []reply{{text: msgBodyPhotoPrompt, kind: domain.KindText}},
		}
	case "3":
		return outcome{
			next:         domain.StateEnded,
			clearContext: true,
			replies:      []reply{{text: msgFarewell, kind: domain.KindText}},
		}
	default:
		return outcome{
			next:    domain.StateWelcome,
			replies: []reply{{text: msgWelcomeMenu, kind: domain.KindWelcome}},
		}
	}
}

func handleAwaitingPhoto(ctx context.Context, e *Engine, user *domain.User, _ *domain.Session, ev domain.InboundEvent) outcome {
	if !ev.HasMedia() {
		return stay(domain.StateAwaitingPhoto, msgPhotoReprompt)
	}

	// Metered call: gate before touching the provider. The counter moves
	// only after a successful analysis.
	if !e.quota.AllowAnalysis(user) {
		return stay(domain.StateAwaitingPhoto, msgUpgradeAnalysis)
	}

	analysis, err := e.providers.Vision.Analyze(ctx, ev.MediaRef)
	if err != nil {
		slog.Warn("skin-tone analysis failed", "user", user.Address, "error", err)
		return stay(domain.StateAwaitingPhoto, msgAnalysisFailed)
	}

	return outcome{
		next: domain.StateAwaitingBudget,
		contextPatch: domain.BudgetContext{
			AnalyzedImageRef:  ev.MediaRef,
			RecommendedColors: analysis.RecommendedColors,
		},
		replies:  []reply{{text: msgAnalysisResult(analysis), kind: domain.KindText}},
		analysis: analysis,
	}
}

func handleAwaitingTryOnPhoto(_ context.Context, _ *Engine, _ *domain.User, _ *domain.Session, ev domain.InboundEvent) outcome {
	if !ev.HasMedia() {
		return stay(domain.StateAwaitingTryOnPhoto, msgBodyPhotoReprompt)
	}
	return outcome{
		next:         domain.StateAwaitingClothingChoice,
		contextPatch: domain.TryOnContext{BodyImageRef: ev.MediaRef},
		replies:      []reply{{text: msgGarmentPrompt, kind: domain.KindText}},
	}
}

func handleAwaitingBudget(ctx context.Context, e *Engine, user *domain.User, sess *domain.Session, ev domain.InboundEvent) outcome {
	choice := strings.TrimSpace(ev.Text)
	if choice == "4" {
		return backToMenu()
	}

	budget, ok := domain.BudgetRangeForChoice(choice)
	if !ok {
		return stay(domain.StateAwaitingBudget, msgBudgetInvalid)
	}

	if !user.HasSkinTone() {
		// Budget arrived without a stored classification; the search query
		// cannot be built, so the user is asked to run an analysis first.
		return stay(domain.StateAwaitingBudget, msgSkinToneMissing)
	}

	products, err := e.providers.Search.Search(ctx, searchQuery(user, sess), budget)
	if err != nil {
		// No retained context makes resuming the search meaningful, so this
		// failure returns to the menu instead of staying in state.
		slog.Warn("product search failed", "user", user.Address, "error", err)
		return outcome{
			next:         domain.StateWelcome,
			clearContext: true,
			replies:      []reply{{text: msgSearchFailed, kind: domain.KindText}},
		}
	}
	if len(products) == 0 {
		return stay(domain.StateAwaitingBudget, msgNoProducts(budget))
	}

	return outcome{
		next:         domain.StateShowingProducts,
		contextPatch: domain.ProductsContext{Products: products},
		replies:      []reply{{text: msgProductList(products, budget), kind: domain.KindProductList}},
	}
}

func handleAwaitingClothingChoice(ctx context.Context, e *Engine, user *domain.User, sess *domain.Session, ev domain.InboundEvent) outcome {
	tctx, ok := sess.TryOnContext()
	if !ok {
		// Stale or foreign context reads as absent: without a stored body
		// photo the flow steps back and asks for one.
		return outcome{
			next:    domain.StateAwaitingTryOnPhoto,
			replies: []reply{{text: msgBodyPhotoPrompt, kind: domain.KindText}},
		}
	}

	garment := strings.TrimSpace(ev.Text)
	if garment == "" {
		return stay(domain.StateAwaitingClothingChoice, msgGarmentReprompt)
	}

	if !e.quota.AllowTryOn(user) {
		return stay(domain.StateAwaitingClothingChoice, msgUpgradeTryOn)
	}

	resultRef, err := e.providers.Compositor.Compose(ctx, tctx.BodyImageRef, garment)
	if err != nil {
		// Context stays untouched so a retry reuses the stored body photo.
		slog.Warn("garment composition failed", "user", user.Address, "error", err)
		return stay(domain.StateAwaitingClothingChoice, msgCompositionFailed)
	}

	return outcome{
		next: domain.StateShowingTryOnResult,
		replies: []reply{{
			text:     msgTryOnResult,
			mediaRef: resultRef,
			kind:     domain.KindTryOnResult,
		}},
		tryOnDone: true,
	}
}

func handleShowingTryOnResult(_ context.Context, _ *Engine, _ *domain.User, _ *domain.Session, ev domain.InboundEvent) outcome {
	switch strings.TrimSpace(ev.Text) {
	case "1":
		// Body photo reference is retained in context for the retry.
		return outcome{
			next:    domain.StateAwaitingClothingChoice,
			replies: []reply{{text: msgGarmentPrompt, kind: domain.KindText}},
		}
	case "2":
		return backToMenu()
	default:
		return stay(domain.StateShowingTryOnResult, msgTryOnOptions)
	}
}

func handleShowingProducts(_ context.Context, _ *Engine, _ *domain.User, _ *domain.Session, ev domain.InboundEvent) outcome {
	if strings.TrimSpace(ev.Text) == "3" {
		return backToMenu()
	}
	// Any other input while the product list is on screen is ignored.
	return outcome{next: domain.StateShowingProducts}
}

func handleEnded(_ context.Context, _ *Engine, _ *domain.User, _ *domain.Session, _ domain.InboundEvent) outcome {
	// The farewell state loops back to a fresh menu on any input.
	return outcome{
		next:         domain.StateWelcome,
		clearContext: true,
		replies:      []reply{{text: msgWelcomeMenu, kind: domain.KindWelcome}},
	}
}

func handleUnknownState(_ context.Context, _ *Engine, _ *domain.User, _ *domain.Session, _ domain.InboundEvent) outcome {
	return outcome{
		next:         domain.StateWelcome,
		clearContext: true,
		replies:      []reply{{text: msgWelcomeMenu, kind: domain.KindWelcome}},
	}
}

// stay keeps the session in state and sends a single reprompt.
func stay(state domain.State, text string) outcome {
	return outcome{
		next:    state,
		replies: []reply{{text: text, kind: domain.KindText}},
	}
}

// backToMenu resets the flow to WELCOME with cleared context.
func backToMenu() outcome {
	return outcome{
		next:         domain.StateWelcome,
		clearContext: true,
		replies:      []reply{{text: msgWelcomeMenu, kind: domain.KindWelcome}},
	}
}

// searchQuery builds the shopping query from the stored classification and
// the colors recommended by the last analysis, when still present.
func searchQuery(user *domain.User, sess *domain.Session) string {
	parts := []string{"women's clothing", user.SkinTone}
	if bctx, ok := sess.BudgetContext(); ok && len(bctx.RecommendedColors) > 0 {
		parts = append(parts, strings.Join(bctx.RecommendedColors, " "))
	}
	return strings.Join(parts, " ")
}
