package treatment

// Dosage is the consumption computed for one treatment event. Volumes are in
// ml; per-allergen volume is uniform across the allergen list (the formulas
// never split across allergens). Costing happens downstream, per product.
type Dosage struct {
	// MLPerAllergen is the active-substance volume consumed per allergen.
	MLPerAllergen float64
	// EvansML is the total Evans diluent volume.
	EvansML float64
	// BacterialML is the total bacterial diluent volume. For sublingual
	// treatments the VITS total is carried in this slot for storage-model
	// uniformity.
	BacterialML float64
	// ReportSubtype is the subtype used for reporting. ALXOID_B.2 is
	// accounted under ALXOID_B.
	ReportSubtype string
}

// Mother-vial fraction used per vial number, in-vial glycerinated.
var inVialFractions = map[int]float64{
	1: 0.002,
	2: 0.005,
	3: 0.02,
	4: 0.05,
	5: 0.2,
	6: 0.5,
}

// Per-allergen and VITS fractions per vial number, sublingual.
var (
	sublingualFractions = map[int]float64{
		1: 0.002,
		2: 0.005,
		3: 0.02,
		4: 0.05,
	}
	sublingualVITS = map[int]float64{
		1: 0.004,
		2: 0.02,
		3: 0.1,
		4: 0.5,
	}
)

// Per-dose active volume per allergen, alxoid, by subtype.
var alxoidPerDose = map[string]float64{
	SubtypeAlxoidA:  0.5,
	SubtypeAlxoidB:  0.5,
	SubtypeAlxoidB2: 0.2,
}

// Calculate selects the calculator for the classified family and returns the
// consumed volumes. Empty allergen lists and missing vials are valid
// degenerate inputs producing zero totals, never errors; persistence decides
// whether a zero-volume result is still worth recording (it generally is,
// as an observation-only event).
func Calculate(c Classification) Dosage {
	switch c.Family {
	case FamilyGlycerinatedByUnit:
		return byUnitDosage(c.UnitCount, c.DoseCount, c.VialType, c.Subtype)
	case FamilyAlxoid:
		return alxoidDosage(c.Subtype, c.DoseCount)
	case FamilyGlycerinatedInVial:
		return inVialDosage(c.VialNumbers, c.DoseCount, len(c.Allergens), c.Subtype)
	case FamilySublingual:
		return sublingualDosage(c.VialNumbers, len(c.Allergens), c.Subtype)
	default:
		return Dosage{ReportSubtype: c.Subtype}
	}
}

// byUnitDosage: one ten-thousandth of the unit count per dose per allergen.
// The vial type selects the Evans multiplier (mother 0, yellow 9, green 99);
// the bacterial diluent only applies when dosing from the mother vial.
func byUnitDosage(units float64, doseCount int, vialType, subtype string) Dosage {
	perDose := units / 10000
	dose := float64(doseCount)

	var evansMultiplier float64
	switch vialType {
	case YellowVial:
		evansMultiplier = 9
	case GreenVial:
		evansMultiplier = 99
	}

	d := Dosage{
		MLPerAllergen: perDose * dose,
		EvansML:       perDose * evansMultiplier * dose,
		ReportSubtype: subtype,
	}
	if vialType == MotherVial || vialType == "" {
		d.BacterialML = 0.1 * dose
	}
	return d
}

// alxoidDosage: fixed per-dose volume by subtype, no diluents. Unrecognized
// alxoid variants dose like subtype A.
func alxoidDosage(subtype string, doseCount int) Dosage {
	perDose, ok := alxoidPerDose[subtype]
	if !ok {
		perDose = alxoidPerDose[SubtypeAlxoidA]
	}

	report := subtype
	if subtype == SubtypeAlxoidB2 {
		report = SubtypeAlxoidB
	}

	return Dosage{
		MLPerAllergen: perDose * float64(doseCount),
		ReportSubtype: report,
	}
}

// inVialDosage sums the mother-vial fraction per vial used. Unknown vial
// numbers contribute a zero fraction but still count toward the diluents.
func inVialDosage(vials []int, doseCount, allergenCount int, subtype string) Dosage {
	dose := float64(doseCount)
	count := float64(allergenCount)

	d := Dosage{ReportSubtype: subtype}
	for _, vial := range vials {
		fraction := inVialFractions[vial]
		d.MLPerAllergen += fraction * dose
		d.EvansML += (3 - fraction*count) * dose
		d.BacterialML += 2 * dose
	}
	return d
}

// sublingualDosage sums the per-allergen fraction per vial used; the VITS
// total rides in the bacterial slot.
func sublingualDosage(vials []int, allergenCount int, subtype string) Dosage {
	count := float64(allergenCount)

	d := Dosage{ReportSubtype: subtype}
	for _, vial := range vials {
		d.MLPerAllergen += sublingualFractions[vial] * count
		d.BacterialML += 5 - sublingualVITS[vial]*count
	}
	return d
}
