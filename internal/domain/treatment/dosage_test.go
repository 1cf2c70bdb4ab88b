package treatment

import (
	"math"
	"testing"
)

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s: expected %v, got %v", name, want, got)
	}
}

func TestCalculate_ByUnitMotherVial(t *testing.T) {
	d := Calculate(Classification{
		Family:    FamilyGlycerinatedByUnit,
		Subtype:   string(FamilyGlycerinatedByUnit),
		VialType:  MotherVial,
		UnitCount: 10000,
		DoseCount: 2,
	})
	approx(t, "ml per allergen", d.MLPerAllergen, 2)
	approx(t, "evans", d.EvansML, 0)
	approx(t, "bacterial", d.BacterialML, 0.2)
}

func TestCalculate_ByUnitYellowVial(t *testing.T) {
	d := Calculate(Classification{
		Family:    FamilyGlycerinatedByUnit,
		VialType:  YellowVial,
		UnitCount: 5000,
		DoseCount: 1,
	})
	approx(t, "ml per allergen", d.MLPerAllergen, 0.5)
	approx(t, "evans", d.EvansML, 4.5)
	approx(t, "bacterial", d.BacterialML, 0)
}

func TestCalculate_ByUnitGreenVial(t *testing.T) {
	d := Calculate(Classification{
		Family:    FamilyGlycerinatedByUnit,
		VialType:  GreenVial,
		UnitCount: 1000,
		DoseCount: 1,
	})
	approx(t, "ml per allergen", d.MLPerAllergen, 0.1)
	approx(t, "evans", d.EvansML, 9.9)
	approx(t, "bacterial", d.BacterialML, 0)
}

func TestCalculate_ByUnitEmptyVialTypeDosesFromMother(t *testing.T) {
	d := Calculate(Classification{
		Family:    FamilyGlycerinatedByUnit,
		UnitCount: 10000,
		DoseCount: 1,
	})
	approx(t, "evans", d.EvansML, 0)
	approx(t, "bacterial", d.BacterialML, 0.1)
}

func TestCalculate_AlxoidB2ReportedUnderB(t *testing.T) {
	d := Calculate(Classification{
		Family:    FamilyAlxoid,
		Subtype:   SubtypeAlxoidB2,
		DoseCount: 3,
	})
	approx(t, "ml per allergen", d.MLPerAllergen, 0.6)
	approx(t, "evans", d.EvansML, 0)
	approx(t, "bacterial", d.BacterialML, 0)
	if d.ReportSubtype != SubtypeAlxoidB {
		t.Errorf("expected report subtype %s, got %s", SubtypeAlxoidB, d.ReportSubtype)
	}
}

func TestCalculate_AlxoidAAndB(t *testing.T) {
	for _, subtype := range []string{SubtypeAlxoidA, SubtypeAlxoidB} {
		d := Calculate(Classification{Family: FamilyAlxoid, Subtype: subtype, DoseCount: 2})
		approx(t, subtype, d.MLPerAllergen, 1)
		if d.ReportSubtype != subtype {
			t.Errorf("expected report subtype %s, got %s", subtype, d.ReportSubtype)
		}
	}
}

func TestCalculate_AlxoidUnknownVariantDosesLikeA(t *testing.T) {
	d := Calculate(Classification{Family: FamilyAlxoid, Subtype: "ALXOID_C", DoseCount: 1})
	approx(t, "ml per allergen", d.MLPerAllergen, 0.5)
	if d.ReportSubtype != "ALXOID_C" {
		t.Errorf("expected report subtype ALXOID_C, got %s", d.ReportSubtype)
	}
}

func TestCalculate_InVialTwoVials(t *testing.T) {
	d := Calculate(Classification{
		Family:      FamilyGlycerinatedInVial,
		VialNumbers: []int{1, 2},
		DoseCount:   10,
		Allergens:   []string{"dust mite", "cat dander"},
	})
	approx(t, "ml per allergen", d.MLPerAllergen, 0.07)
	approx(t, "evans", d.EvansML, 59.86)
	approx(t, "bacterial", d.BacterialML, 40)
}

func TestCalculate_InVialNoVialsYieldsZero(t *testing.T) {
	d := Calculate(Classification{
		Family:    FamilyGlycerinatedInVial,
		DoseCount: 5,
		Allergens: []string{"grass pollen"},
	})
	approx(t, "ml per allergen", d.MLPerAllergen, 0)
	approx(t, "evans", d.EvansML, 0)
	approx(t, "bacterial", d.BacterialML, 0)
}

func TestCalculate_SublingualVialOne(t *testing.T) {
	d := Calculate(Classification{
		Family:      FamilySublingual,
		VialNumbers: []int{1},
		Allergens:   []string{"a", "b", "c"},
	})
	approx(t, "ml per allergen", d.MLPerAllergen, 0.006)
	approx(t, "vits", d.BacterialML, 4.988)
	approx(t, "evans", d.EvansML, 0)
}

func TestCalculate_SublingualVialFour(t *testing.T) {
	d := Calculate(Classification{
		Family:      FamilySublingual,
		VialNumbers: []int{4},
		Allergens:   []string{"a", "b"},
	})
	approx(t, "ml per allergen", d.MLPerAllergen, 0.1)
	approx(t, "vits", d.BacterialML, 4)
}

func TestCalculate_GenericYieldsNoConsumption(t *testing.T) {
	d := Calculate(Classification{
		Family:    FamilyGeneric,
		Subtype:   "BEE_VENOM",
		DoseCount: 4,
		UnitCount: 200,
	})
	approx(t, "ml per allergen", d.MLPerAllergen, 0)
	approx(t, "evans", d.EvansML, 0)
	approx(t, "bacterial", d.BacterialML, 0)
	if d.ReportSubtype != "BEE_VENOM" {
		t.Errorf("expected report subtype BEE_VENOM, got %s", d.ReportSubtype)
	}
}
