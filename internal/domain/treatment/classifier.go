package treatment

import (
	"regexp"
	"strconv"
	"strings"
)

// Classification is the normalized output of classifying a raw treatment
// event: everything the dosage calculators and persistence need.
type Classification struct {
	Family       Family
	Subtype      string
	VialType     string
	UnitCount    float64
	DoseCount    int
	Allergens    []string
	VialNumbers  []int
	Observations string
}

// Subtype spellings that normalize to the two glycerinated families. Both
// the short and the long form arrive from upstream, depending on which form
// created the event.
var (
	byUnitSubtypes = map[string]bool{
		"GLYCERINATED":         true,
		"GLYCERINATED_BY_UNIT": true,
	}
	inVialSubtypes = map[string]bool{
		"GLYCERINATED_VIAL":    true,
		"GLYCERINATED_IN_VIAL": true,
	}
)

var (
	vialListPattern = regexp.MustCompile(`(?i)vials?\s*:\s*([0-9]+(?:\s*,\s*[0-9]+)*)`)
	digitPattern    = regexp.MustCompile(`[0-9]+`)
	hashVialPattern = regexp.MustCompile(`#\s*([0-9]+)`)
)

// Qualifies reports whether an event carries enough real clinical content to
// warrant a log entry. Enrollment-only signals (no units, no doses, no
// allergens) are accepted and dropped upstream of classification.
func Qualifies(e *TreatmentAppliedEvent) bool {
	return e.UnitCount > 0 || e.DoseCount > 0 || len(e.Allergens) > 0
}

// Classify normalizes a raw event into a Classification. Rules apply in
// priority order, first match wins; the family hint from the upstream
// catalog lookup is the most trustworthy signal and outranks the subtype
// string, which may be stale.
func Classify(e *TreatmentAppliedEvent) Classification {
	subtype := strings.TrimSpace(strings.ToUpper(e.Subtype))
	hint := strings.TrimSpace(strings.ToUpper(e.FamilyHint))

	switch {
	case hint != "" && hint != string(FamilyGeneric):
		return Classification{
			Family:       familyFor(hint),
			Subtype:      hint,
			VialType:     vialTypeFromText(e.VialText),
			UnitCount:    e.UnitCount,
			DoseCount:    e.DoseCount,
			Allergens:    e.Allergens,
			VialNumbers:  parseVialNumbers(e.VialText),
			Observations: e.Observations,
		}

	case byUnitSubtypes[subtype]:
		return Classification{
			Family:       FamilyGlycerinatedByUnit,
			Subtype:      string(FamilyGlycerinatedByUnit),
			VialType:     vialTypeFromText(e.VialText),
			UnitCount:    e.UnitCount,
			DoseCount:    defaultDose(e.DoseCount),
			Allergens:    e.Allergens,
			Observations: e.Observations,
		}

	case inVialSubtypes[subtype]:
		return Classification{
			Family:       FamilyGlycerinatedInVial,
			Subtype:      string(FamilyGlycerinatedInVial),
			UnitCount:    e.UnitCount,
			DoseCount:    defaultDose(e.DoseCount),
			Allergens:    e.Allergens,
			VialNumbers:  parseVialNumbers(e.VialText),
			Observations: e.Observations,
		}

	case subtype == string(FamilySublingual):
		return Classification{
			Family:       FamilySublingual,
			Subtype:      string(FamilySublingual),
			UnitCount:    e.UnitCount,
			DoseCount:    defaultDose(e.DoseCount),
			Allergens:    e.Allergens,
			VialNumbers:  []int{sublingualVial(e)},
			Observations: e.Observations,
		}

	case strings.HasPrefix(subtype, alxoidPrefix):
		return Classification{
			Family:       FamilyAlxoid,
			Subtype:      subtype,
			UnitCount:    e.UnitCount,
			DoseCount:    defaultDose(e.DoseCount),
			Allergens:    e.Allergens,
			Observations: e.Observations,
		}

	case subtype != "" && subtype != string(FamilyGeneric):
		return Classification{
			Family:       FamilyGeneric,
			Subtype:      subtype,
			UnitCount:    e.UnitCount,
			DoseCount:    defaultDose(e.DoseCount),
			Allergens:    e.Allergens,
			Observations: e.Observations,
		}

	default:
		return Classification{
			Family:       FamilyGeneric,
			Subtype:      string(FamilyGeneric),
			UnitCount:    e.UnitCount,
			DoseCount:    defaultDose(e.DoseCount),
			Allergens:    e.Allergens,
			Observations: e.Observations,
		}
	}
}

func familyFor(subtype string) Family {
	switch {
	case byUnitSubtypes[subtype]:
		return FamilyGlycerinatedByUnit
	case inVialSubtypes[subtype]:
		return FamilyGlycerinatedInVial
	case subtype == string(FamilySublingual):
		return FamilySublingual
	case strings.HasPrefix(subtype, alxoidPrefix):
		return FamilyAlxoid
	default:
		return FamilyGeneric
	}
}

func defaultDose(dose int) int {
	if dose <= 0 {
		return 1
	}
	return dose
}

// vialTypeFromText extracts the vial type from a free-text descriptor,
// defaulting to the mother vial when nothing recognizable is present.
func vialTypeFromText(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "yellow"):
		return YellowVial
	case strings.Contains(lower, "green"):
		return GreenVial
	default:
		return MotherVial
	}
}

// parseVialNumbers extracts vial numbers from a free-text descriptor of the
// form "Vials: 1, 2, 3". When that shape is absent it falls back to the
// first embedded integer, and to nothing when there is none.
func parseVialNumbers(text string) []int {
	if m := vialListPattern.FindStringSubmatch(text); m != nil {
		var vials []int
		for _, part := range strings.Split(m[1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				continue
			}
			vials = append(vials, n)
		}
		return vials
	}
	if m := digitPattern.FindString(text); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return []int{n}
		}
	}
	return nil
}

// sublingualVial extracts the vial number from a "#<n>" fragment embedded in
// the first line item's product identifier, defaulting to vial 1.
func sublingualVial(e *TreatmentAppliedEvent) int {
	if len(e.Items) > 0 {
		if m := hashVialPattern.FindStringSubmatch(e.Items[0].ProductID); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
	}
	return 1
}
